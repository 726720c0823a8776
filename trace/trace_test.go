package trace

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		trace   *RunTrace
		wantErr string
	}{
		{
			name:    "nil trace",
			trace:   nil,
			wantErr: "trace is nil",
		},
		{
			name:    "missing run id",
			trace:   &RunTrace{},
			wantErr: "runId is required",
		},
		{
			name: "unknown kind",
			trace: &RunTrace{RunID: "r", Events: []Event{
				{Kind: "Bogus", Phase: 1},
			}},
			wantErr: `unknown kind "Bogus"`,
		},
		{
			name: "phase below one",
			trace: &RunTrace{RunID: "r", Events: []Event{
				{Kind: EventBatchDispatched, Phase: 0},
			}},
			wantErr: "phase must be >= 1",
		},
		{
			name: "task kind without task id",
			trace: &RunTrace{RunID: "r", Events: []Event{
				{Kind: EventTaskStaged, Phase: 1},
			}},
			wantErr: "taskId is required",
		},
		{
			name: "next task id on wrong kind",
			trace: &RunTrace{RunID: "r", Events: []Event{
				{Kind: EventTaskStaged, Phase: 1, TaskID: 1, NextTaskID: 2},
			}},
			wantErr: "nextTaskId is only valid",
		},
		{
			name: "valid",
			trace: &RunTrace{RunID: "r", Events: []Event{
				{Kind: EventTaskStaged, Phase: 1, TaskID: 1, Group: 5},
				{Kind: EventBatchDispatched, Phase: 1, Group: 5, Size: 1},
				{Kind: EventProgressionAdvanced, Phase: 1, TaskID: 2, NextTaskID: 3},
				{Kind: EventPhaseCompleted, Phase: 1, Size: 1},
			}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.trace.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCanonicalizeIsOrderIndependent(t *testing.T) {
	events := []Event{
		{Kind: EventPhaseCompleted, Phase: 1, Size: 2},
		{Kind: EventTaskStaged, Phase: 2, TaskID: 4, Group: 9},
		{Kind: EventBatchDispatched, Phase: 1, Group: 9, Size: 2},
		{Kind: EventTaskStaged, Phase: 1, TaskID: 2, Group: 9},
		{Kind: EventTaskStaged, Phase: 1, TaskID: 1, Group: 9},
		{Kind: EventTaskCoalesced, Phase: 1, TaskID: 1, Group: 9},
		{Kind: EventProgressionAdvanced, Phase: 1, TaskID: 3, NextTaskID: 4},
	}

	a := &RunTrace{RunID: "r", Events: append([]Event(nil), events...)}
	a.Canonicalize()

	// Reversed recording order canonicalizes to the same sequence.
	reversed := make([]Event, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}
	b := &RunTrace{RunID: "r", Events: reversed}
	b.Canonicalize()
	require.Equal(t, a.Events, b.Events)

	want := []Event{
		{Kind: EventTaskStaged, Phase: 1, TaskID: 1, Group: 9},
		{Kind: EventTaskStaged, Phase: 1, TaskID: 2, Group: 9},
		{Kind: EventTaskCoalesced, Phase: 1, TaskID: 1, Group: 9},
		{Kind: EventBatchDispatched, Phase: 1, Group: 9, Size: 2},
		{Kind: EventProgressionAdvanced, Phase: 1, TaskID: 3, NextTaskID: 4},
		{Kind: EventPhaseCompleted, Phase: 1, Size: 2},
		{Kind: EventTaskStaged, Phase: 2, TaskID: 4, Group: 9},
	}
	require.Equal(t, want, a.Events)
}

func TestFingerprintJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Fingerprint(0xdeadbeef))
	require.NoError(t, err)
	require.Equal(t, `"00000000deadbeef"`, string(data))

	var f Fingerprint
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, Fingerprint(0xdeadbeef), f)

	require.Error(t, f.UnmarshalJSON([]byte(`"not-hex"`)))
	require.Error(t, f.UnmarshalJSON([]byte(`42`)))
}

func TestMarshalCanonicalJSON(t *testing.T) {
	tr := &RunTrace{RunID: "run-1", Events: []Event{
		{Kind: EventPhaseCompleted, Phase: 1, Size: 1},
		{Kind: EventBatchDispatched, Phase: 1, Group: 1, Size: 1},
		{Kind: EventTaskStaged, Phase: 1, TaskID: 1, Group: 1},
	}}

	got, err := tr.MarshalCanonicalJSON()
	require.NoError(t, err)

	want := `{
  "runId": "run-1",
  "events": [
    {
      "kind": "TaskStaged",
      "phase": 1,
      "taskId": 1,
      "group": "0000000000000001"
    },
    {
      "kind": "BatchDispatched",
      "phase": 1,
      "group": "0000000000000001",
      "size": 1
    },
    {
      "kind": "PhaseCompleted",
      "phase": 1,
      "size": 1
    }
  ]
}`
	require.Equal(t, want, string(got))

	// Marshaling again yields identical bytes.
	again, err := tr.MarshalCanonicalJSON()
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestMarshalCanonicalJSONRejectsInvalid(t *testing.T) {
	tr := &RunTrace{Events: []Event{{Kind: EventTaskStaged, Phase: 1, TaskID: 1}}}
	_, err := tr.MarshalCanonicalJSON()
	require.ErrorContains(t, err, "runId is required")
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := NewCollector("run-c")

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c.Record(Event{Kind: EventTaskStaged, Phase: 1, TaskID: id})
		}(int64(i))
	}
	wg.Wait()

	tr := c.Trace()
	require.Equal(t, "run-c", tr.RunID)
	require.NoError(t, tr.Validate())
	require.Len(t, tr.Events, 8)
	for i, ev := range tr.Events {
		require.Equal(t, int64(i+1), ev.TaskID)
	}
}
