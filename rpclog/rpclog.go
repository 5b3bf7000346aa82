// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpclog is a thin structured-logging façade the peer engine
// (and the rpcpeer-echo example) use for lifecycle and fault events (shutdown cause,
// duplicate request id, synthesized abort responses). It is backed by
// logrus, the structured logger docker-compose depends on directly
// (github.com/sirupsen/logrus) and karpenter depends on transitively.
package rpclog

import "github.com/sirupsen/logrus"

// Logger is the subset of *logrus.Entry the engine needs; it is the
// declared type of the engine's logger, which is always set to Std().
type Logger interface {
	WithField(key string, value any) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry
}

// Std returns the package-level logrus logger, pre-configured with a
// "component" field identifying the peer engine.
func Std() *logrus.Entry {
	return logrus.StandardLogger().WithField("component", "rpcpeer")
}

// ForRequest returns an entry annotated with a request's id and origin,
// the fields every per-request log line in this module carries.
func ForRequest(id uint32, origin string) *logrus.Entry {
	return Std().WithFields(logrus.Fields{
		"request_id": id,
		"origin":     origin,
	})
}
