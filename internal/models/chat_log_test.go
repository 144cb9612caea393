package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+2348012345678", "+2348012345678"},
		{"2348012345678", "+2348012345678"},
		{" +234 801-234-5678 ", "+2348012345678"},
		{"whatsapp:+14155238886", "+14155238886"},
		{"002348012345678", "+2348012345678"},
		{"(415) 523 8886", "+4155238886"},
		{"", ""},
		{"not a number", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}
