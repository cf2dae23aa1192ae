package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandSelector(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "/start"},
		{"/start@nimbus_bot", "/start"},
		{"/broadcast hello everyone", "/broadcast"},
		{"  /help  ", "/help"},
		{"hello", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commandSelector(tt.text), tt.text)
	}
}

func TestCallbackSelector(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{"\fquotes", "quotes"},
		{"\fquotes|BTC", "quotes"},
		{"admin_panel", "admin_panel"},
		{" settings ", "settings"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, callbackSelector(tt.data), tt.data)
	}
}

func TestBroadcastPayload(t *testing.T) {
	assert.Equal(t, "hello everyone", broadcastPayload("/broadcast hello everyone"))
	assert.Equal(t, "", broadcastPayload("/broadcast"))
	assert.Equal(t, "", broadcastPayload("/broadcast   "))
}
