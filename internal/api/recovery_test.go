package api

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/verdantlabs/landchange/internal/utils"
)

func TestRecoverUnary(t *testing.T) {
	var logs bytes.Buffer
	interceptor := RecoverUnary(utils.NewLoggerTo(&logs, "info", false))
	info := &grpc.UnaryServerInfo{FullMethod: "/landchange.v1.ChangeDetection/SubmitExport"}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("image: NewGray Rectangle has huge or negative dimensions")
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, logs.String(), "SubmitExport")

	resp, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
