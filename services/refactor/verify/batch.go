// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Task is one original/modified pair to verify.
type Task struct {
	// ID labels the task in logs and results.
	ID string

	FilePath   string
	Original   []byte
	Modified   []byte
	ClassName  string
	MethodName string
}

// TaskResult pairs a Task with its verdict.
type TaskResult struct {
	ID     string  `json:"id"`
	Result *Result `json:"result,omitempty"`

	// Err is set when the original could not be measured or the context
	// ended before a verdict. It is marshaled as "error".
	Err error `json:"-"`
}

// MarshalJSON adds the error text.
func (r TaskResult) MarshalJSON() ([]byte, error) {
	type plain TaskResult
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// VerifyBatch verifies tasks concurrently.
//
// Description:
//
//	Results are returned in the order of tasks regardless of completion
//	order. A task whose original cannot be measured, or whose parse was
//	cut short by ctx, gets Err set instead of a Result and does not stop
//	the others.
//
// Inputs:
//   - ctx: Cancellation stops scheduling new tasks; remaining results
//     carry ctx.Err().
//   - tasks: The pairs to verify.
//   - workers: Concurrency limit. Zero or less uses the configured count.
//
// Outputs:
//   - []TaskResult: One per task, same order.
func (v *Verifier) VerifyBatch(ctx context.Context, tasks []Task, workers int) []TaskResult {
	if workers <= 0 {
		workers = v.workers
	}

	results := make([]TaskResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, task := range tasks {
		results[i].ID = task.ID
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			res, err := v.VerifySources(gctx, task.Original, task.Modified, task.FilePath, task.ClassName, task.MethodName)
			results[i].Result = res
			results[i].Err = err
			if err != nil {
				v.logger.Warn("task not verified",
					slog.String("task", task.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
