package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerb(t *testing.T) {
	tests := []struct {
		line string
		want Verb
	}{
		{"waitforring", VerbWaitForRing},
		{"ctwaitforring", VerbWaitForRing},
		{"waitfordial", VerbWaitForDial},
		{"hangup", VerbHangup},
		{"cthangup", VerbHangup},
		{"answer\r", VerbAnswer},
		{"PLAY", VerbPlay},
		{"ctrecord", VerbRecord},
		{" sleep ", VerbSleep},
		{"clear", VerbClear},
		{"ctcollect", VerbCollect},
		{"dial", VerbDial},
		{"", VerbUnknown},
		{"ct", VerbUnknown},
		{"reboot", VerbUnknown},
		{"play /tmp/x.ul", VerbUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerb(tt.line))
		})
	}
}

func TestVerbsRoundTripThroughNames(t *testing.T) {
	for _, v := range Verbs() {
		assert.Equal(t, v, ParseVerb(v.String()))
		assert.Equal(t, v, ParseVerb("ct"+v.String()))
	}
	assert.Equal(t, "unknown", VerbUnknown.String())
}

func TestFrame(t *testing.T) {
	assert.Equal(t, []byte("OK\n\x00"), Frame(ReplyOK))
	assert.Equal(t, []byte("\n\x00"), Frame(""))
	// strlen(reply)+1 байт, где reply включает \n
	assert.Len(t, Frame("5"), len("5\n")+1)
}

func TestConn_ReadParamAndReply(t *testing.T) {
	var out bytes.Buffer
	c := NewConn(strings.NewReader("play\r\n/tmp/a.ul\r\n"), &out, 0)

	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, VerbPlay, ParseVerb(line))

	param, err := c.ReadParam()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.ul", param)

	require.NoError(t, c.Reply(ReplyOK))
	require.NoError(t, c.Reply("7"))
	assert.Equal(t, "OK\n\x007\n\x00", out.String())
	assert.Equal(t, 2, c.Replies())

	_, err = c.ReadParam()
	assert.ErrorIs(t, err, ErrEndOfStream)
}
