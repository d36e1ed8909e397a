package s3

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	b, err := New(Config{Bucket: "assets", AccessKeyID: "a", SecretAccessKey: "b", Endpoint: "http://localhost:9000", UsePathStyle: true})
	require.NoError(t, err)
	assert.Equal(t, "videos/x.mp4", b.ObjectKey("/videos/x.mp4"))

	b.config.KeyPrefix = "media/"
	assert.Equal(t, "media/images/videos/x.jpg", b.ObjectKey("/images/videos/x.jpg"))
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"typed not found", &types.NotFound{}, true},
		{"typed no such key", fmt.Errorf("wrapped: %w", &types.NoSuchKey{}), true},
		{"generic api error", &smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestCountingReader(t *testing.T) {
	c := &countingReader{r: strings.NewReader("twelve bytes")}
	buf := make([]byte, 5)
	for {
		if _, err := c.Read(buf); err != nil {
			break
		}
	}
	assert.Equal(t, int64(12), c.n)
}
