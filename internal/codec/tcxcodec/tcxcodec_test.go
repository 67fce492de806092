package tcxcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTCX = `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase>
  <Activities>
    <Activity Sport="Running">
      <Id>2024-05-01T10:00:00Z</Id>
      <Lap StartTime="2024-05-01T10:00:00Z">
        <Track>
          <Trackpoint>
            <Time>2024-05-01T10:00:00Z</Time>
            <Position>
              <LatitudeDegrees>51.5</LatitudeDegrees>
              <LongitudeDegrees>-0.1</LongitudeDegrees>
            </Position>
            <AltitudeMeters>12.3</AltitudeMeters>
            <HeartRateBpm><Value>140</Value></HeartRateBpm>
            <Cadence>85</Cadence>
            <Extensions>
              <TPX>
                <Watts>210</Watts>
              </TPX>
            </Extensions>
          </Trackpoint>
          <Trackpoint>
            <Time>2024-05-01T10:01:00Z</Time>
          </Trackpoint>
        </Track>
      </Lap>
    </Activity>
  </Activities>
</TrainingCenterDatabase>`

func TestDecodeBasicShape(t *testing.T) {
	tr, err := (Codec{}).Decode([]byte(sampleTCX))
	require.NoError(t, err)

	assert.Equal(t, "tcx", tr.Metadata.Format)
	require.NotNil(t, tr.Metadata.Sport)
	assert.Equal(t, "running", *tr.Metadata.Sport)
	require.NotNil(t, tr.Metadata.StartTime)

	require.Len(t, tr.Segments, 1)
	require.Len(t, tr.Segments[0].Points, 2)

	p0 := tr.Segments[0].Points[0]
	assert.False(t, p0.NoPosition)
	assert.Equal(t, 51.5, p0.Lat)
	assert.Equal(t, -0.1, p0.Lon)
	require.NotNil(t, p0.Ele)
	assert.Equal(t, 12.3, *p0.Ele)
	require.NotNil(t, p0.HR)
	assert.Equal(t, 140, *p0.HR)
	require.NotNil(t, p0.Cadence)
	assert.Equal(t, 85, *p0.Cadence)
	require.NotNil(t, p0.Power)
	assert.Equal(t, 210, *p0.Power)
}

func TestDecodeMarksMissingPositionAsNoPosition(t *testing.T) {
	tr, err := (Codec{}).Decode([]byte(sampleTCX))
	require.NoError(t, err)

	p1 := tr.Segments[0].Points[1]
	assert.True(t, p1.NoPosition)
}

func TestDecodeMissingActivityFails(t *testing.T) {
	_, err := (Codec{}).Decode([]byte(`<TrainingCenterDatabase></TrainingCenterDatabase>`))
	assert.Error(t, err)
}
