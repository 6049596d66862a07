package protocol

import "github.com/google/uuid"

// ZeroRequestID is the requestId of envelopes that expect no correlation.
var ZeroRequestID = uuid.Nil.String()

// GenerateID returns a random (version 4) UUID string. It never returns
// ZeroRequestID.
func GenerateID() string {
	for {
		id := uuid.NewString()
		if id != ZeroRequestID {
			return id
		}
	}
}
