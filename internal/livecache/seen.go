/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package livecache

import (
	"time"

	"go.uber.org/zap"
)

// markSeen records key and reports whether it was new.
func (d *Dispatcher) markSeen(key string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.seen[key]; exists {
		return false
	}
	d.seen[key] = time.Now()
	d.seenOrder = append(d.seenOrder, key)
	return true
}

// cleanupLoop periodically trims the processed event keys
func (d *Dispatcher) cleanupLoop(stopChan, doneChan chan struct{}) {
	defer close(doneChan)

	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.pruneSeen()
		case <-stopChan:
			return
		}
	}
}

// pruneSeen drops the oldest keys until the set is back within capacity
func (d *Dispatcher) pruneSeen() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	excess := len(d.seenOrder) - d.seenCapacity
	if excess <= 0 {
		return
	}
	for _, key := range d.seenOrder[:excess] {
		delete(d.seen, key)
	}
	d.seenOrder = append([]string(nil), d.seenOrder[excess:]...)

	zap.L().Debug("Cleaned up processed event keys",
		zap.Int("cleaned", excess),
		zap.Int("remaining", len(d.seenOrder)))
}
