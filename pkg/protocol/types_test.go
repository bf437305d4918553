package protocol_test

import (
	"testing"

	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRealmListRequest(t *testing.T) {
	assert.Equal(t, []byte{0x10, 0, 0, 0, 0}, protocol.EncodeRealmListRequest())
}

func TestEncodeRealmList_Empty(t *testing.T) {
	data := protocol.EncodeRealmList(nil)

	// header(3) + unknown(4) + count(2) + trailer(2)
	require.Len(t, data, 11)
	assert.Equal(t, byte(0x10), data[0])
	assert.Equal(t, []byte{8, 0}, data[1:3])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, data[3:9])
	assert.Equal(t, []byte{0x10, 0x00}, data[9:])
}

func TestEncodeRealmList_Layout(t *testing.T) {
	realms := []protocol.RealmEntry{
		{
			Icon:       1,
			Locked:     true,
			Flags:      protocol.RealmFlagRecommended,
			Name:       "Test",
			Address:    "127.0.0.1",
			Port:       8085,
			Population: 0.5,
			NumChars:   3,
			Timezone:   1,
			ID:         1,
		},
	}

	data := protocol.EncodeRealmList(realms)

	expected := []byte{0x10, 0, 0, 0, 0, 0, 0, 1, 0}
	expected = append(expected, 1, 1, 0x40)
	expected = append(expected, []byte("Test\x00")...)
	expected = append(expected, []byte("127.0.0.1:8085\x00")...)
	expected = append(expected, 0x00, 0x00, 0x00, 0x3F) // 0.5
	expected = append(expected, 3, 1, 1)
	expected = append(expected, 0x10, 0x00)
	size := len(expected) - 3
	expected[1] = byte(size)
	expected[2] = byte(size >> 8)

	assert.Equal(t, expected, data)
}

func TestParseRealmList_RoundTrip(t *testing.T) {
	realms := []protocol.RealmEntry{
		{Icon: 0, Name: "Alpha", Address: "10.0.0.1", Port: 8085, Population: 1, NumChars: 2, Timezone: 1, ID: 1},
		{Icon: 4, Locked: true, Flags: protocol.RealmFlagOffline, Name: "Beta", Address: "beta.example.com", Port: 8086, Population: 2, Timezone: 8, ID: 2},
	}

	parsed, err := protocol.ParseRealmList(protocol.EncodeRealmList(realms))
	require.NoError(t, err)
	assert.Equal(t, realms, parsed)
}

func TestParseRealmList_Errors(t *testing.T) {
	valid := protocol.EncodeRealmList([]protocol.RealmEntry{{Name: "Alpha", Address: "10.0.0.1", Port: 1}})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: protocol.ErrTruncated},
		{name: "wrong command", data: []byte{0x01, 0, 0}, wantErr: protocol.ErrUnexpectedCommand},
		{name: "size mismatch", data: append(append([]byte{}, valid...), 0xFF), wantErr: protocol.ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.ParseRealmList(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRealmEntry_Endpoint(t *testing.T) {
	e := protocol.RealmEntry{Address: "192.168.1.10", Port: 8085}
	assert.Equal(t, "192.168.1.10:8085", e.Endpoint())
}
