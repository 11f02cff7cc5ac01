// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"reflect"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// domain holds the instances registered under one name. Instance IDs start at 1: instances[id-1] is the
// instance with the given ID, or nil if it was unregistered.
type domain struct {
	instances []any
	ids       map[any]uint32
	numLive   int
}

// RegisterInstance registers obj in the given domain, and returns its ID (>= 1). Registering the same
// object twice returns the same ID.
//
// Objects must be comparable (typically pointers), since they are used as map keys.
func (e *Engine) RegisterInstance(domainName string, obj any) (uint32, error) {
	if domainName == "" {
		return 0, errors.New("jit.RegisterInstance(): empty domain name")
	}
	if obj == nil || !reflect.TypeOf(obj).Comparable() {
		return 0, errors.Errorf("jit.RegisterInstance(%q): instance of type %T is not comparable", domainName, obj)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.domains[domainName]
	if d == nil {
		d = &domain{ids: make(map[any]uint32)}
		e.domains[domainName] = d
	}
	if id, found := d.ids[obj]; found {
		return id, nil
	}
	d.instances = append(d.instances, obj)
	id := uint32(len(d.instances))
	d.ids[obj] = id
	d.numLive++
	klog.V(1).Infof("jit: registered instance #%d (%T) in domain %q", id, obj, domainName)
	return id, nil
}

// Unregister removes the instance from the domain. Its ID is not reused.
func (e *Engine) Unregister(domainName string, obj any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.domains[domainName]
	if d == nil || obj == nil || !reflect.TypeOf(obj).Comparable() {
		return
	}
	id, found := d.ids[obj]
	if !found {
		return
	}
	delete(d.ids, obj)
	d.instances[id-1] = nil
	d.numLive--
}

// Instance returns the instance registered with the given ID, or nil if there is none.
func (e *Engine) Instance(domainName string, id uint32) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.domains[domainName]
	if d == nil || id == 0 || int(id) > len(d.instances) {
		return nil
	}
	return d.instances[id-1]
}

// InstanceID returns the ID of a registered instance, or 0 if obj is nil or not registered.
func (e *Engine) InstanceID(domainName string, obj any) uint32 {
	if obj == nil || !reflect.TypeOf(obj).Comparable() {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.domains[domainName]
	if d == nil {
		return 0
	}
	return d.ids[obj]
}

// Instances returns the number of live instances registered in the domain.
func (e *Engine) Instances(domainName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.domains[domainName]; d != nil {
		return d.numLive
	}
	return 0
}
