package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FailureKind
	}{
		{"status", &StatusError{StatusCode: 410}, models.FailureHTTPStatus},
		{"wrapped status", fmt.Errorf("get: %w", &StatusError{StatusCode: 500}), models.FailureHTTPStatus},
		{"content type", &ContentTypeError{ContentType: "image/png"}, models.FailureUnsupportedContentType},
		{"empty extraction", ErrExtractionEmpty, models.FailureExtractionEmpty},
		{"extraction panic", &common.PanicError{Value: "boom"}, models.FailureExtractionEmpty},
		{"redirects", fmt.Errorf("get: %w", ErrTooManyRedirects), models.FailureConnectionError},
		{"deadline", fmt.Errorf("read body: %w", context.DeadlineExceeded), models.FailureTimeout},
		{"other", errors.New("tls: handshake failure"), models.FailureConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}
