package model

import (
	"context"
)

// HookFunc observes or mutates the instance at one lifecycle point. A
// returned error aborts the operation; nothing has been written when a
// before-hook fails.
type HookFunc func(ctx context.Context, inst *Instance) error

// Hooks are the lifecycle callbacks of a model. For a create the firing
// order is BeforeValidate, AfterValidate, BeforeCreate, BeforeSave, the
// write itself, AfterCreate, AfterSave; updates swap the create pair for
// BeforeUpdate/AfterUpdate. Any hook may be nil.
type Hooks struct {
	BeforeValidate HookFunc
	AfterValidate  HookFunc

	BeforeCreate HookFunc
	BeforeUpdate HookFunc
	BeforeSave   HookFunc

	AfterCreate HookFunc
	AfterUpdate HookFunc
	AfterSave   HookFunc
}

// runHook invokes one hook and folds the fields it changed back into the
// pending write payload. Fields the hook did not touch keep whatever the
// payload already holds, so a hook cannot accidentally revert concurrent
// payload edits it never saw.
func runHook(ctx context.Context, hook HookFunc, inst *Instance, payload map[string]any) error {
	if hook == nil {
		return nil
	}
	before := inst.snapshot()
	if err := hook(ctx, inst); err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	for k, v := range inst.changedSince(before) {
		payload[k] = v
	}
	return nil
}
