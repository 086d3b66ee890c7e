// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Keeper Vault Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ratelimit - per-caller write throttling
//
// buckets are volatile; a restart grants every caller a full bucket
package ratelimit

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/keeper-vault/keeperd/constants"
	"github.com/keeper-vault/keeperd/fault"
	"github.com/keeper-vault/keeperd/principal"
)

// idle buckets are dropped once they are certainly full again
const bucketIdleLifetime = 2 * constants.WriteBucketSize * time.Second

// Limiter - one bucket per caller principal
type Limiter struct {
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
}

// New - a limiter with the standard write budget
func New() *Limiter {
	return NewWithBudget(constants.WriteRefillPerSecond, constants.WriteBucketSize)
}

// NewWithBudget - a limiter with an explicit refill rate and burst
func NewWithBudget(refillPerSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: gocache.New(bucketIdleLifetime, 5*time.Minute),
		limit:   rate.Limit(refillPerSecond),
		burst:   burst,
	}
}

// Allow - take one token from the caller's bucket
func (l *Limiter) Allow(caller principal.Principal) error {
	key := string(caller.Bytes())
	item, found := l.buckets.Get(key)
	var bucket *rate.Limiter
	if found {
		bucket = item.(*rate.Limiter)
	} else {
		bucket = rate.NewLimiter(l.limit, l.burst)
	}
	// refresh the expiry alongside the take
	l.buckets.Set(key, bucket, bucketIdleLifetime)

	if !bucket.Allow() {
		return fault.RateLimitExceeded
	}
	return nil
}
