package events

import (
	"strings"
	"unicode"
)

// Event names the game is known to publish. The list is not exhaustive:
// any name may be registered and is sent to the game verbatim.
const (
	AdditionalContentLoaded  = "AdditionalContentLoaded"
	AgentCommand             = "AgentCommand"
	AgentCreated             = "AgentCreated"
	APIInit                  = "ApiInit"
	AppPaused                = "AppPaused"
	AppResumed               = "AppResumed"
	AppSuspended             = "AppSuspended"
	AwardAchievement         = "AwardAchievement"
	BlockBroken              = "BlockBroken"
	BlockPlaced              = "BlockPlaced"
	BoardTextUpdated         = "BoardTextUpdated"
	BossKilled               = "BossKilled"
	CameraUsed               = "CameraUsed"
	CauldronUsed             = "CauldronUsed"
	ConfigurationChanged     = "ConfigurationChanged"
	ConnectionFailed         = "ConnectionFailed"
	CraftingSessionCompleted = "CraftingSessionCompleted"
	EndOfDay                 = "EndOfDay"
	EntitySpawned            = "EntitySpawned"
	FileTransmissionCanceled = "FileTransmissionCancelled"
	FileTransmissionComplete = "FileTransmissionCompleted"
	FileTransmissionStarted  = "FileTransmissionStarted"
	FirstTimeClientOpen      = "FirstTimeClientOpen"
	FocusGained              = "FocusGained"
	FocusLost                = "FocusLost"
	GameSessionComplete      = "GameSessionComplete"
	GameSessionStart         = "GameSessionStart"
	HardwareInfo             = "HardwareInfo"
	HasNewContent            = "HasNewContent"
	ItemAcquired             = "ItemAcquired"
	ItemCrafted              = "ItemCrafted"
	ItemDestroyed            = "ItemDestroyed"
	ItemDropped              = "ItemDropped"
	ItemEnchanted            = "ItemEnchanted"
	ItemSmelted              = "ItemSmelted"
	ItemUsed                 = "ItemUsed"
	JoinCanceled             = "JoinCanceled"
	JukeboxUsed              = "JukeboxUsed"
	LicenseCensus            = "LicenseCensus"
	MascotCreated            = "MascotCreated"
	MenuShown                = "MenuShown"
	MobInteracted            = "MobInteracted"
	MobKilled                = "MobKilled"
	MultiplayerConnection    = "MultiplayerConnectionStateChanged"
	MultiplayerRoundEnd      = "MultiplayerRoundEnd"
	MultiplayerRoundStart    = "MultiplayerRoundStart"
	NpcPropertiesUpdated     = "NpcPropertiesUpdated"
	OptionsUpdated           = "OptionsUpdated"
	PerformanceMetrics       = "performanceMetrics"
	PackImportStage          = "PackImportStage"
	PlayerBounced            = "PlayerBounced"
	PlayerDied               = "PlayerDied"
	PlayerJoin               = "PlayerJoin"
	PlayerLeave              = "PlayerLeave"
	PlayerMessage            = "PlayerMessage"
	PlayerTeleported         = "PlayerTeleported"
	PlayerTransform          = "PlayerTransform"
	PlayerTravelled          = "PlayerTravelled"
	PortalBuilt              = "PortalBuilt"
	PortalUsed               = "PortalUsed"
	PortfolioExported        = "PortfolioExported"
	PotionBrewed             = "PotionBrewed"
	PurchaseAttempt          = "PurchaseAttempt"
	PurchaseResolved         = "PurchaseResolved"
	RegionalPopup            = "RegionalPopup"
	RespondedToAcceptContent = "RespondedToAcceptContent"
	ScreenChanged            = "ScreenChanged"
	ScreenHeartbeat          = "ScreenHeartbeat"
	SignInToEdu              = "SignInToEdu"
	SignInToXboxLive         = "SignInToXboxLive"
	SignOutOfXboxLive        = "SignOutOfXboxLive"
	SpecialMobBuilt          = "SpecialMobBuilt"
	StartClient              = "StartClient"
	StartWorld               = "StartWorld"
	TextToSpeechToggled      = "TextToSpeechToggled"
	UgcDownloadCompleted     = "UgcDownloadCompleted"
	UgcDownloadStarted       = "UgcDownloadStarted"
	UploadSkin               = "UploadSkin"
	VehicleExited            = "VehicleExited"
	WorldExported            = "WorldExported"
	WorldFilesListed         = "WorldFilesListed"
	WorldGenerated           = "WorldGenerated"
	WorldLoaded              = "WorldLoaded"
	WorldUnloaded            = "WorldUnloaded"
)

// Known lists the event names above.
var Known = []string{
	AdditionalContentLoaded, AgentCommand, AgentCreated, APIInit, AppPaused,
	AppResumed, AppSuspended, AwardAchievement, BlockBroken, BlockPlaced,
	BoardTextUpdated, BossKilled, CameraUsed, CauldronUsed,
	ConfigurationChanged, ConnectionFailed, CraftingSessionCompleted,
	EndOfDay, EntitySpawned, FileTransmissionCanceled,
	FileTransmissionComplete, FileTransmissionStarted, FirstTimeClientOpen,
	FocusGained, FocusLost, GameSessionComplete, GameSessionStart,
	HardwareInfo, HasNewContent, ItemAcquired, ItemCrafted, ItemDestroyed,
	ItemDropped, ItemEnchanted, ItemSmelted, ItemUsed, JoinCanceled,
	JukeboxUsed, LicenseCensus, MascotCreated, MenuShown, MobInteracted,
	MobKilled, MultiplayerConnection, MultiplayerRoundEnd,
	MultiplayerRoundStart, NpcPropertiesUpdated, OptionsUpdated,
	PackImportStage, PlayerBounced, PlayerDied, PlayerJoin, PlayerLeave,
	PlayerMessage, PlayerTeleported, PlayerTransform, PlayerTravelled,
	PortalBuilt, PortalUsed, PortfolioExported, PotionBrewed,
	PurchaseAttempt, PurchaseResolved, RegionalPopup,
	RespondedToAcceptContent, ScreenChanged, ScreenHeartbeat, SignInToEdu,
	SignInToXboxLive, SignOutOfXboxLive, SpecialMobBuilt, StartClient,
	StartWorld, TextToSpeechToggled, UgcDownloadCompleted,
	UgcDownloadStarted, UploadSkin, VehicleExited, WorldExported,
	WorldFilesListed, WorldGenerated, WorldLoaded, WorldUnloaded,
	PerformanceMetrics,
}

// IsKnown reports whether name is one of the Known event names.
func IsKnown(name string) bool {
	for _, k := range Known {
		if k == name {
			return true
		}
	}
	return false
}

// SnakeCase converts a wire event name to snake_case, e.g. PlayerMessage
// becomes player_message. It is a convenience for host-side naming only;
// event names are always matched verbatim.
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
