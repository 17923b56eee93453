package rdamongo

import (
	"errors"

	"github.com/lemmego/rda"
	"go.mongodb.org/mongo-driver/mongo"
)

// =====================================
// Error Conversion
// =====================================

// convertError maps driver errors onto the shared error surface.
// Misses become not-found errors, connectivity trouble becomes a
// coded remote error the classifier understands, everything else
// passes through untouched.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return rda.NewNotFoundError("no document matched")
	}
	if errors.Is(err, mongo.ErrNilDocument) || errors.Is(err, mongo.ErrNilValue) {
		return rda.NewValidationError("nil document")
	}

	if mongo.IsTimeout(err) {
		return &rda.RemoteError{
			Code:    string(rda.CodeTimeout),
			Message: err.Error(),
		}
	}
	if mongo.IsNetworkError(err) {
		return &rda.RemoteError{
			Code:    string(rda.CodeConnectionError),
			Message: err.Error(),
		}
	}

	return err
}
