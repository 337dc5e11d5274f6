// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"context"
	"time"

	"github.com/BSWANG/v6d/lib/catalog"
	"github.com/BSWANG/v6d/lib/names"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// CreateData commits a draft and returns the created records, root
// last. target names the instance that must perform the commit;
// UnspecifiedInstance means this one. Nodes flagged global are
// persisted as part of the commit.
func (i *Instance) CreateData(ctx context.Context, draft *objmeta.Draft, target objectid.InstanceID) ([]objmeta.Record, error) {
	if target != objectid.UnspecifiedInstance && target != i.info.ID {
		if i.view.IsMember(target) {
			return nil, storeerr.New(storeerr.InstanceUnavailable,
				"instance %s cannot commit on behalf of instance %s; connect to it directly", i.info.ID, target)
		}
		return nil, storeerr.New(storeerr.InstanceUnavailable, "instance %s is not a member of the cluster", target)
	}

	i.mu.Lock()
	created, err := i.catalog.Commit(draft, i.visibleClosure)
	if err != nil {
		i.mu.Unlock()
		return nil, err
	}

	var published []objmeta.Record
	persisted := make(map[objectid.ObjectID]bool)
	for _, record := range created {
		if !record.Global {
			continue
		}
		closure, err := i.catalog.Persist(record.ID)
		if err != nil {
			i.mu.Unlock()
			return nil, err
		}
		for _, member := range closure {
			if !persisted[member.ID] {
				persisted[member.ID] = true
				published = append(published, member)
			}
		}
	}
	for index := range created {
		if persisted[created[index].ID] {
			created[index].Persisted = true
		}
	}
	if len(published) == 0 {
		i.mu.Unlock()
		return created, nil
	}

	i.registryMu.Lock()
	i.mu.Unlock()
	defer i.registryMu.Unlock()
	if err := i.registry.Publish(ctx, i.info.ID, published); err != nil {
		i.logger.Warn("publishing global objects failed; persist them again to retry",
			"root", created[len(created)-1].ID.String(),
			"error", err,
		)
	}
	return created, nil
}

// GetData returns the records of ids and of everything they reach,
// members before their referrers, each record once. Objects of other
// instances are answered from the cluster view; syncRemote refreshes
// the view first.
func (i *Instance) GetData(ctx context.Context, ids []objectid.ObjectID, syncRemote bool) ([]objmeta.Record, error) {
	if syncRemote {
		if err := i.view.Sync(ctx); err != nil {
			return nil, err
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	var records []objmeta.Record
	seen := make(map[objectid.ObjectID]bool)
	for _, id := range ids {
		closure, err := i.closureLocked(id)
		if err != nil {
			return nil, err
		}
		for _, record := range closure {
			if !seen[record.ID] {
				seen[record.ID] = true
				records = append(records, record)
			}
		}
	}
	return records, nil
}

// visibleClosure resolves members that other instances persisted.
func (i *Instance) visibleClosure(id objectid.ObjectID) ([]objmeta.Record, bool) {
	if _, visible := i.view.Get(id); !visible {
		return nil, false
	}
	closure, err := i.view.Closure(id)
	return closure, err == nil
}

// localClosure returns the catalog closure of a local object, preceded
// by the closures of the visible members it references on other
// instances.
func (i *Instance) localClosure(id objectid.ObjectID) ([]objmeta.Record, error) {
	closure, err := i.catalog.Closure(id)
	if err != nil {
		return nil, err
	}
	present := make(map[objectid.ObjectID]bool, len(closure))
	for _, record := range closure {
		present[record.ID] = true
	}
	var foreign []objmeta.Record
	for _, record := range closure {
		for _, member := range record.MemberIDs() {
			if present[member] || i.catalog.Exists(member) {
				continue
			}
			members, ok := i.visibleClosure(member)
			if !ok {
				continue
			}
			for _, reached := range members {
				if !present[reached.ID] {
					present[reached.ID] = true
					foreign = append(foreign, reached)
				}
			}
		}
	}
	if len(foreign) == 0 {
		return closure, nil
	}
	return append(foreign, closure...), nil
}

func (i *Instance) closureLocked(id objectid.ObjectID) ([]objmeta.Record, error) {
	if i.catalog.Exists(id) {
		return i.localClosure(id)
	}
	if _, visible := i.view.Get(id); visible {
		return i.view.Closure(id)
	}
	return nil, storeerr.New(storeerr.NotFound, "object %s does not exist", id)
}

// ListData returns the local objects whose typename matches, at most
// limit of them, with their closures. nobuffer leaves blob records out
// of the closures.
func (i *Instance) ListData(typePattern string, regex bool, limit int, nobuffer bool) ([]objectid.ObjectID, []objmeta.Record, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	roots, err := i.catalog.List(typePattern, regex, limit)
	if err != nil {
		return nil, nil, err
	}
	var records []objmeta.Record
	seen := make(map[objectid.ObjectID]bool)
	for _, root := range roots {
		closure, err := i.localClosure(root)
		if err != nil {
			return nil, nil, err
		}
		for _, record := range closure {
			if seen[record.ID] || (nobuffer && record.IsBlob()) {
				continue
			}
			seen[record.ID] = true
			records = append(records, record)
		}
	}
	return roots, records, nil
}

// Exists reports whether id is visible from this instance. It never
// fails.
func (i *Instance) Exists(id objectid.ObjectID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.existsLocked(id)
}

func (i *Instance) existsLocked(id objectid.ObjectID) bool {
	if i.catalog.Exists(id) {
		return true
	}
	_, visible := i.view.Get(id)
	return visible
}

// foreignLocked fails with InstanceUnavailable when id is visible only
// as another instance's persisted object.
func (i *Instance) foreignLocked(id objectid.ObjectID, operation string) error {
	if i.catalog.Exists(id) {
		return nil
	}
	if record, visible := i.view.Get(id); visible {
		return storeerr.New(storeerr.InstanceUnavailable,
			"cannot %s %s: it belongs to instance %s", operation, id, record.Instance)
	}
	return nil
}

// Persist makes id and everything it reaches visible cluster-wide.
// Persisting again republishes, which also retries a publish that
// failed earlier. Objects of other instances are already persisted.
func (i *Instance) Persist(ctx context.Context, id objectid.ObjectID) error {
	i.mu.Lock()
	if !i.catalog.Exists(id) {
		_, visible := i.view.Get(id)
		i.mu.Unlock()
		if visible {
			return nil
		}
		return storeerr.New(storeerr.NotFound, "object %s does not exist on instance %s", id, i.info.ID)
	}
	closure, err := i.catalog.Persist(id)
	if err != nil {
		i.mu.Unlock()
		return err
	}
	i.registryMu.Lock()
	i.mu.Unlock()
	defer i.registryMu.Unlock()
	return i.registry.Publish(ctx, i.info.ID, closure)
}

// ShallowCopy creates a new object with the attributes and member
// references of id, merged with extra, and returns its id.
func (i *Instance) ShallowCopy(id objectid.ObjectID, extra map[string]any) (objectid.ObjectID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.foreignLocked(id, "copy"); err != nil {
		return objectid.InvalidObjectID, err
	}
	copied, err := i.catalog.ShallowCopy(id, extra)
	if err != nil {
		return objectid.InvalidObjectID, err
	}
	return copied.ID, nil
}

// Delete removes ids under options and returns every removed record's
// id. The arena spans of removed blobs are freed, names bound to
// removed objects are dropped and persisted records are withdrawn from
// the registry.
func (i *Instance) Delete(ctx context.Context, ids []objectid.ObjectID, options catalog.DeleteOptions) ([]objectid.ObjectID, error) {
	i.mu.Lock()
	for _, id := range ids {
		if err := i.foreignLocked(id, "delete"); err != nil {
			i.mu.Unlock()
			return nil, err
		}
	}
	removal, err := i.catalog.Delete(ids, options)
	if err != nil {
		i.mu.Unlock()
		return nil, err
	}
	i.releaseLocked(removal)
	i.withdrawAndUnlock(ctx, removal)
	return removal.Removed, nil
}

// Clear removes every object and name of the instance. Builders still
// open in live sessions are kept.
func (i *Instance) Clear(ctx context.Context) error {
	i.mu.Lock()
	removal := i.catalog.Clear()
	i.releaseLocked(removal)
	i.names.Clear()
	i.withdrawAndUnlock(ctx, removal)
	return nil
}

func (i *Instance) releaseLocked(removal catalog.Removal) {
	for _, blob := range removal.Blobs {
		if err := i.blobs.Release(blob); err != nil {
			i.logger.Error("releasing a deleted blob failed", "blob", blob.String(), "error", err)
		}
	}
	if dropped := i.names.DropObject(removal.Removed...); len(dropped) > 0 {
		i.logger.Debug("dropped names of deleted objects", "names", dropped)
	}
}

// withdrawAndUnlock releases mu and withdraws the removal's persisted
// records, in catalog order with other registry updates.
func (i *Instance) withdrawAndUnlock(ctx context.Context, removal catalog.Removal) {
	if len(removal.Persisted) == 0 {
		i.mu.Unlock()
		return
	}
	i.registryMu.Lock()
	i.mu.Unlock()
	defer i.registryMu.Unlock()
	if err := i.registry.Withdraw(ctx, i.info.ID, removal.Persisted); err != nil {
		i.logger.Warn("withdrawing deleted objects from the registry failed",
			"count", len(removal.Persisted),
			"error", err,
		)
	}
}

// PutName binds name to id, which must be visible from this instance.
func (i *Instance) PutName(name string, id objectid.ObjectID) error {
	i.mu.Lock()
	exists := i.existsLocked(id)
	i.mu.Unlock()
	if !exists {
		return storeerr.New(storeerr.NotFound, "object %s does not exist", id)
	}
	return i.names.Put(name, id)
}

// GetName resolves name. With wait set it blocks until the name is
// bound, timeout elapses or ctx ends; a zero timeout waits on ctx
// alone.
func (i *Instance) GetName(ctx context.Context, name string, wait bool, timeout time.Duration) (objectid.ObjectID, error) {
	if !wait {
		return i.names.Get(name)
	}
	return i.names.Wait(ctx, name, timeout)
}

// ListNames returns the bindings whose name matches, sorted by name.
func (i *Instance) ListNames(namePattern string, regex bool, limit int) ([]names.Entry, error) {
	return i.names.List(namePattern, regex, limit)
}

// DropName removes a binding.
func (i *Instance) DropName(name string) error {
	return i.names.Drop(name)
}
