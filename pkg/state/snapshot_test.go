package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a    interface{}
		b    interface{}
		want bool
	}{
		{name: "same list", a: []string{"2H", "3H"}, b: []interface{}{"2H", "3H"}, want: true},
		{name: "int and float", a: 1, b: 1.0, want: true},
		{name: "order matters in lists", a: []string{"2H", "3H"}, b: []string{"3H", "2H"}, want: false},
		{name: "nested maps", a: map[string]interface{}{"a": 1, "b": 2}, b: map[string]interface{}{"b": 2, "a": 1}, want: true},
		{name: "list vs map", a: []interface{}{1}, b: map[string]interface{}{"0": 1}, want: false},
		{name: "nil vs value", a: nil, b: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueEqual(tt.a, tt.b))
		})
	}
}

func TestChecksum(t *testing.T) {
	s := Snapshot{"current_turn": 0, "players": []string{"A", "B"}, "hand_A": []string{"2H"}}

	first, err := Checksum(s)
	require.NoError(t, err)
	second, err := Checksum(s.Clone())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 16)

	changed := s.Clone()
	changed["current_turn"] = 1
	third, err := Checksum(changed)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestChecksum_StableAcrossDecoding(t *testing.T) {
	s := Snapshot{"round_scores": map[string]interface{}{"team1": 3, "team2": 1}, "players": []string{"A", "B"}}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	decoded := Snapshot{}
	require.NoError(t, json.Unmarshal(b, &decoded))

	want, _ := Checksum(s)
	got, _ := Checksum(decoded)
	assert.Equal(t, want, got)
}

func TestSnapshot_FilterForPlayer(t *testing.T) {
	s := Snapshot{
		"hand_A":   []string{"2H"},
		"hand_B":   []string{"3S"},
		"led_suit": "H",
	}

	got := s.FilterForPlayer("A")
	assert.Contains(t, got, "hand_A")
	assert.Contains(t, got, "led_suit")
	assert.NotContains(t, got, "hand_B")
}

func TestSnapshot_PlayersAndTurn(t *testing.T) {
	s := Snapshot{
		"players":      []interface{}{"A", map[string]interface{}{"name": "B"}, 3},
		"current_turn": float64(1),
	}
	assert.Equal(t, []string{"A", "B"}, s.Players())

	turn, ok := s.CurrentTurn()
	require.True(t, ok)
	player, ok := PlayerAt(s.Players(), turn)
	require.True(t, ok)
	assert.Equal(t, "B", player)

	_, ok = PlayerAt(s.Players(), 5)
	assert.False(t, ok)
}

func TestSnapshot_Merge(t *testing.T) {
	s := Snapshot{"a": 1, "b": []string{"x"}}
	merged := s.Merge(map[string]interface{}{"a": nil, "c": 3})

	assert.Equal(t, Snapshot{"b": []string{"x"}, "c": 3}, merged)
	assert.Equal(t, 1, s["a"], "merge must not mutate the receiver")
}

func TestInMemoryStateManager(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStateManager()

	_, ok := m.Get(ctx, "room-1")
	assert.False(t, ok)

	require.Error(t, m.Set(ctx, "room-1", nil))

	s := Snapshot{"hand_A": []string{"2H"}}
	require.NoError(t, m.Set(ctx, "room-1", s))
	s["hand_A"] = []string{}

	got, ok := m.Get(ctx, "room-1")
	require.True(t, ok)
	assert.Equal(t, []string{"2H"}, got["hand_A"])

	m.Delete(ctx, "room-1")
	_, ok = m.Get(ctx, "room-1")
	assert.False(t, ok)
}
