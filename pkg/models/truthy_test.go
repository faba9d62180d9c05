package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    bool
		wantErr bool
	}{
		{name: "nil", input: nil},
		{name: "true bool", input: true, want: true},
		{name: "false bool", input: false},
		{name: "blank output", input: "  \n"},
		{name: "true text", input: "true\n", want: true},
		{name: "yes", input: " Yes ", want: true},
		{name: "off", input: "off"},
		{name: "numeric text", input: "3", want: true},
		{name: "zero text", input: "0.0"},
		{name: "zero int", input: 0},
		{name: "non zero int64", input: int64(-1), want: true},
		{name: "non zero float", input: 2.5, want: true},
		{name: "garbage text", input: "maybe", wantErr: true},
		{name: "unsupported type", input: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Truthy(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
