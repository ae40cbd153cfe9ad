package database

import "context"

// stubHandle stands in for a remote binding that cannot be reached from this
// process. Every query succeeds with an empty result set.
type stubHandle struct{}

func (stubHandle) Prepare(string) Statement { return stubStatement{} }

func (stubHandle) Exec(context.Context, string) error { return nil }

func (stubHandle) Dump(context.Context) ([]byte, error) { return nil, nil }

func (stubHandle) Close() error { return nil }

type stubStatement struct{}

func (stubStatement) Bind(...any) Statement { return stubStatement{} }

func (stubStatement) First(context.Context) (map[string]any, error) { return nil, nil }

func (stubStatement) Run(context.Context) (Result, error) { return Result{}, nil }

func (stubStatement) All(context.Context) ([]map[string]any, error) { return []map[string]any{}, nil }
