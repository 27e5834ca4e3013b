package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := [16]byte(uuid.New())
	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"run start", Event{RunID: id, TS: now, Stage: StageRunStart}, false},
		{"missing run id", Event{TS: now, Stage: StageRunStart}, true},
		{"missing ts", Event{RunID: id, Stage: StageRunStart}, true},
		{"unknown stage", Event{RunID: id, TS: now, Stage: "NOPE"}, true},
		{"item without url", Event{RunID: id, TS: now, Stage: StageItemFailed, Kind: "image"}, true},
		{"item without kind", Event{RunID: id, TS: now, Stage: StageItemFailed, URL: "http://x/a.png"}, true},
		{"stored without status", Event{RunID: id, TS: now, Stage: StageItemStored, Kind: "image", URL: "http://x/a.png"}, true},
		{"failed without status", Event{RunID: id, TS: now, Stage: StageItemFailed, Kind: "image", URL: "http://x/a.png"}, false},
		{"negative duration", Event{RunID: id, TS: now, Stage: StageRunDone, Dur: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Status2xx, ClassifyStatus(200))
	assert.Equal(t, Status3xx, ClassifyStatus(301))
	assert.Equal(t, Status4xx, ClassifyStatus(404))
	assert.Equal(t, Status5xx, ClassifyStatus(503))
	assert.Equal(t, StatusOther, ClassifyStatus(0))
}

func TestRunUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: [16]byte(id)}
	assert.Equal(t, id, evt.RunUUID())
}
