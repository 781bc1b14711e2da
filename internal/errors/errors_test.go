package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestCode(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, codes.Unknown, Code(context.Canceled))
	assert.Equal(t, codes.Internal, Code(Internal("boom")))
	assert.Equal(t, codes.InvalidArgument, Code(InvalidArgument("bad")))

	wrapped := fmt.Errorf("outer: %w", Unavailable("agent down"))
	assert.Equal(t, codes.Unavailable, Code(wrapped))
}

func TestDetails(t *testing.T) {
	err := Internal(
		"register failed",
		WithID("consul.registry.register.error"),
		WithCause(New("agent rejected", WithCause(context.DeadlineExceeded))),
	)

	assert.Equal(t,
		"[consul.registry.register.error] register failed <- agent rejected <- context deadline exceeded",
		Details(err),
	)
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "register failed: agent rejected")
}
