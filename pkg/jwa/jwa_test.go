package jwa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAllowedAlgorithms(t *testing.T) {
	def := DefaultAllowedAlgorithms()

	tests := []struct {
		Name    string
		Allowed []Algorithm
		Require func(t *testing.T, algs AllowedAlgorithms)
	}{
		{
			Name:    "none allowed",
			Allowed: []Algorithm{},
			Require: func(t *testing.T, algs AllowedAlgorithms) {
				require.Empty(t, algs)
				require.Empty(t, algs.List())
				require.False(t, algs.Allowed(def.List()...))
			},
		},
		{
			Name:    "default allowed",
			Allowed: DefaultAllowedAlgorithms().List(),
			Require: func(t *testing.T, algs AllowedAlgorithms) {
				require.Len(t, algs, 2)
				require.Equal(t, []Algorithm{ES256, RS256}, algs.List())
				require.True(t, algs.Allowed(def.List()...))
				require.False(t, algs.Allowed(HS256))
			},
		},
		{
			Name:    "key management and content encryption",
			Allowed: []Algorithm{ECDHESA128KW, A128GCM, A128GCM},
			Require: func(t *testing.T, algs AllowedAlgorithms) {
				require.Len(t, algs, 2)
				require.True(t, algs.Allowed(ECDHESA128KW, A128GCM))
				require.False(t, algs.Allowed(ECDHESA128KW, A256GCM))
				require.False(t, algs.Allowed())
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			algs := NewAllowedAlgorithms(test.Allowed...)
			if test.Require != nil {
				test.Require(t, algs)
			}
		})
	}
}
