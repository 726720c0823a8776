package cli

import (
	"context"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"batchmux"
)

// Handler IDs of the directory service.
const (
	LookupHandlerID  = "lookup"
	ProfileHandlerID = "profile"
)

// LookupTask resolves a user name to its UID. Lookups for the same name
// coalesce within a run.
type LookupTask struct {
	Name string
}

func (t LookupTask) BatchingKeys() batchmux.BatchingKeys {
	return batchmux.BatchingKeys{
		Handler:  LookupHandlerID,
		BatchKey: batchmux.DefaultBatchKey,
		TaskKey:  t.Name,
	}
}

// FetchProfileTask loads the profile attributes of one UID. Fetches for the
// same UID coalesce within a run.
type FetchProfileTask struct {
	UID int64
}

func (t FetchProfileTask) BatchingKeys() batchmux.BatchingKeys {
	return batchmux.BatchingKeys{
		Handler:  ProfileHandlerID,
		BatchKey: batchmux.DefaultBatchKey,
		TaskKey:  strconv.FormatInt(t.UID, 10),
	}
}

// ResolveProfile chains a name lookup into a profile fetch. An unknown name
// ends the sequence, so the slot resolves to nil instead of failing the run.
func ResolveProfile(name string) batchmux.Task {
	return batchmux.Sequence(LookupTask{Name: name}, func(result any) batchmux.Task {
		uid, ok := result.(int64)
		if !ok {
			return nil
		}
		return FetchProfileTask{UID: uid}
	})
}

type lookupHandler struct {
	ds     *Dataset
	logger log.Logger
}

func (h *lookupHandler) ExecuteBatch(_ context.Context, _ string, tasks map[batchmux.TaskID]batchmux.Task, out batchmux.Results) error {
	level.Debug(h.logger).Log("msg", "resolving names", "count", len(tasks))
	for id, t := range tasks {
		lt, ok := t.(LookupTask)
		if !ok {
			return errors.Wrapf(batchmux.ErrUnexpectedTaskKind, "%T is not a lookup task", t)
		}
		// Misses are results, not errors.
		if uid, ok := h.ds.Users[lt.Name]; ok {
			out[id] = uid
		} else {
			out[id] = nil
		}
	}
	return nil
}

type profileHandler struct {
	ds     *Dataset
	logger log.Logger
}

func (h *profileHandler) ExecuteBatch(_ context.Context, _ string, tasks map[batchmux.TaskID]batchmux.Task, out batchmux.Results) error {
	level.Debug(h.logger).Log("msg", "fetching profiles", "count", len(tasks))
	for id, t := range tasks {
		ft, ok := t.(FetchProfileTask)
		if !ok {
			return errors.Wrapf(batchmux.ErrUnexpectedTaskKind, "%T is not a profile task", t)
		}
		if profile, ok := h.ds.Profiles[ft.UID]; ok {
			out[id] = profile
		} else {
			out[id] = nil
		}
	}
	return nil
}

// NewDirectoryRegistry builds a handler registry serving the given dataset.
// The built-in thunk handler is re-registered with the requested concurrency.
func NewDirectoryRegistry(ds *Dataset, logger log.Logger, workers int) *batchmux.Registry {
	reg := batchmux.NewRegistry()
	reg.Register(LookupHandlerID, &lookupHandler{ds: ds, logger: log.With(logger, "handler", LookupHandlerID)})
	reg.Register(ProfileHandlerID, &profileHandler{ds: ds, logger: log.With(logger, "handler", ProfileHandlerID)})
	reg.Register(batchmux.SimpleHandlerID, batchmux.NewSimpleHandler(workers))
	return reg
}
