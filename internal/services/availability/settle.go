// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import "sync"

type settlement[T any] struct {
	value T
	err   error
}

// settleAll runs fn for every item concurrently and waits for all of them,
// whatever they return. Results keep the order of items.
func settleAll[I, T any](items []I, fn func(I) (T, error)) []settlement[T] {
	out := make([]settlement[T], len(items))

	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		i, item := i, item
		go func() {
			defer wg.Done()
			v, err := fn(item)
			out[i] = settlement[T]{value: v, err: err}
		}()
	}
	wg.Wait()

	return out
}
