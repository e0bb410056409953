package backend_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/3leaps/imageport/pkg/backend"
)

var namingNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestTimestampedName(t *testing.T) {
	tests := []struct {
		name      string
		localPath string
		want      string
	}{
		{
			name:      "raw image",
			localPath: "/work/disk.raw",
			want:      "disk_20240115103000.raw",
		},
		{
			name:      "vhd keeps extension",
			localPath: "staging/fedora.vhd",
			want:      "fedora_20240115103000.vhd",
		},
		{
			name:      "no extension",
			localPath: "/work/disk",
			want:      "disk_20240115103000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.TimestampedName(tt.localPath, namingNow))
		})
	}
}

func TestTimestampedNameWithExt(t *testing.T) {
	// The AWS upload path forces .raw regardless of the source extension.
	got := backend.TimestampedNameWithExt("/work/disk.img", namingNow, ".raw")
	assert.Equal(t, "disk_20240115103000.raw", got)
}

func TestCloudValid(t *testing.T) {
	assert.True(t, backend.CloudAWS.Valid())
	assert.True(t, backend.CloudAzure.Valid())
	assert.True(t, backend.CloudGCP.Valid())
	assert.False(t, backend.Cloud("digitalocean").Valid())
}

func TestBootModeValid(t *testing.T) {
	assert.True(t, backend.BootModeNone.Valid())
	assert.True(t, backend.BootModeBIOS.Valid())
	assert.True(t, backend.BootModeUEFI.Valid())
	assert.False(t, backend.BootMode("efi").Valid())
}
