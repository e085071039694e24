package interrupt

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func legacyPayload() *rapid.Generator[map[string]any] {
	return rapid.Custom(func(t *rapid.T) map[string]any {
		typ := rapid.OneOf(
			rapid.SampledFrom([]string{"booking_approval", "email_approval"}),
			rapid.StringMatching(`[a-z_]{1,16}`),
		).Draw(t, "type")

		payload := map[string]any{"type": typ}
		if rapid.Bool().Draw(t, "hasMessage") {
			payload["message"] = rapid.String().Draw(t, "message")
		}
		if rapid.Bool().Draw(t, "hasInstructions") {
			payload["instructions"] = rapid.String().Draw(t, "instructions")
		}
		for _, field := range rapid.SliceOfDistinct(rapid.SampledFrom(nestedArgFields), rapid.ID[string]).Draw(t, "nested") {
			payload[field] = map[string]any{
				rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key"): rapid.String().Draw(t, "value"),
			}
		}
		for i, n := 0, rapid.IntRange(0, 3).Draw(t, "extra"); i < n; i++ {
			payload[rapid.StringMatching(`x_[a-z]{1,6}`).Draw(t, "extraKey")] = rapid.Int().Draw(t, "extraValue")
		}
		return payload
	})
}

func canonicalPayload() *rapid.Generator[map[string]any] {
	return rapid.Custom(func(t *rapid.T) map[string]any {
		return map[string]any{
			"action_request": map[string]any{
				"action": rapid.StringMatching(`[a-z_]{0,12}`).Draw(t, "action"),
				"args":   map[string]any{"n": rapid.Int().Draw(t, "n")},
			},
			"config": map[string]any{
				"allow_ignore":  rapid.Bool().Draw(t, "ignore"),
				"allow_respond": rapid.Bool().Draw(t, "respond"),
				"allow_edit":    rapid.Bool().Draw(t, "edit"),
				"allow_accept":  rapid.Bool().Draw(t, "accept"),
			},
			"description": rapid.String().Draw(t, "description"),
		}
	})
}

func rawPayloads() *rapid.Generator[[]json.RawMessage] {
	anyPayload := rapid.OneOf(
		rapid.Map(legacyPayload(), func(m map[string]any) any { return m }),
		rapid.Map(canonicalPayload(), func(m map[string]any) any { return m }),
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.Int(), func(n int) any { return map[string]any{"type": n} }),
	)
	return rapid.Custom(func(t *rapid.T) []json.RawMessage {
		items := rapid.SliceOfN(anyPayload, 0, 8).Draw(t, "payloads")
		raw := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			b, err := json.Marshal(item)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			raw = append(raw, b)
		}
		return raw
	})
}

// Every processed payload serializes to the canonical shape, whatever went in.
func TestProperty_ProcessAll_OnlyCanonicalOutput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rawPayloads().Draw(rt, "raw")

		out := ProcessAll(raw)
		require.Len(rt, out, len(raw))

		for _, in := range out {
			b, err := json.Marshal(in)
			require.NoError(rt, err)

			var fields map[string]any
			require.NoError(rt, json.Unmarshal(b, &fields))
			require.Contains(rt, fields, "action_request")
			require.Contains(rt, fields, "config")
			require.NotContains(rt, fields, "type")
		}
	})
}

func TestProperty_ProcessAll_LeavesInputUntouched(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rawPayloads().Draw(rt, "raw")

		before := make([][]byte, len(raw))
		for i, r := range raw {
			before[i] = bytes.Clone(r)
		}

		ProcessAll(raw)

		for i := range raw {
			require.Equal(rt, before[i], []byte(raw[i]))
		}
	})
}

func TestProperty_Convert_LegacyAlwaysHasAction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		legacy := legacyPayload().Draw(rt, "legacy")
		require.True(rt, IsLegacy(legacy))

		got := Convert(legacy)
		require.NotEmpty(rt, got.ActionRequest.Action)
		require.NotNil(rt, got.ActionRequest.Args)

		hasNested := false
		for _, field := range nestedArgFields {
			if _, ok := legacy[field]; ok {
				hasNested = true
			}
		}
		if !hasNested {
			for field := range metadataFields {
				require.NotContains(rt, got.ActionRequest.Args, field)
			}
		}
	})
}

func TestProperty_ProcessAll_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rawPayloads().Draw(rt, "raw")

		first, err := json.Marshal(ProcessAll(raw))
		require.NoError(rt, err)
		second, err := json.Marshal(ProcessAll(raw))
		require.NoError(rt, err)

		require.Equal(rt, first, second)
	})
}
