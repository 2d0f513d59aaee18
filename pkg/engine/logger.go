// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/pterm/pterm"

// Logger reports the execution runtime's pipeline stages (spec §4.8).
type Logger interface {
	LogExecuteStart(sql string)
	LogExecuteComplete(sql string)
	LogExecuteRollback(sql string, err error)

	LogCommitFanoutStart(versionIDs []string)
	LogCommitFanoutComplete(versionIDs []string)

	LogPluginInstall(key string)
	LogPluginInvoke(key, path string)

	Info(msg string, args ...any)
}

type engineLogger struct {
	logger pterm.Logger
}

type noopLogger struct{}

func NewLogger() Logger {
	return &engineLogger{logger: pterm.DefaultLogger}
}

func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *engineLogger) LogExecuteStart(sql string) {
	l.logger.Info("executing statement", l.logger.Args("sql", sql))
}

func (l *engineLogger) LogExecuteComplete(sql string) {
	l.logger.Info("statement committed", l.logger.Args("sql", sql))
}

func (l *engineLogger) LogExecuteRollback(sql string, err error) {
	l.logger.Error("rolling back transaction", l.logger.Args("sql", sql, "error", err))
}

func (l *engineLogger) LogCommitFanoutStart(versionIDs []string) {
	l.logger.Info("post-commit fan-out starting", l.logger.Args("version_ids", versionIDs))
}

func (l *engineLogger) LogCommitFanoutComplete(versionIDs []string) {
	l.logger.Info("post-commit fan-out complete", l.logger.Args("version_ids", versionIDs))
}

func (l *engineLogger) LogPluginInstall(key string) {
	l.logger.Info("plugin installed", l.logger.Args("key", key))
}

func (l *engineLogger) LogPluginInvoke(key, path string) {
	l.logger.Info("plugin invoked", l.logger.Args("key", key, "path", path))
}

func (l *engineLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

func (noopLogger) LogExecuteStart(sql string)                   {}
func (noopLogger) LogExecuteComplete(sql string)                {}
func (noopLogger) LogExecuteRollback(sql string, err error)     {}
func (noopLogger) LogCommitFanoutStart(versionIDs []string)     {}
func (noopLogger) LogCommitFanoutComplete(versionIDs []string)  {}
func (noopLogger) LogPluginInstall(key string)                  {}
func (noopLogger) LogPluginInvoke(key, path string)             {}
func (noopLogger) Info(msg string, args ...any)                 {}
