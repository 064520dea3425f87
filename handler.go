// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"net/http"
	"runtime"
	"time"

	"aead.dev/mem"
	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/broadcast"
	"github.com/minio/bank/internal/headers"
	"github.com/minio/bank/internal/protocol"
	"github.com/minio/bank/internal/sys"
	"github.com/prometheus/common/expfmt"
)

// Handler returns an http.Handler serving the replica APIs.
func (r *Replica) Handler() http.Handler {
	mux := http.NewServeMux()
	for path, a := range r.routes() {
		mux.Handle(path, r.metrics.Count(r.metrics.Latency(r.auditLog.Audit(a.ServeHTTP))))
	}
	return mux
}

func (r *Replica) routes() map[string]api.API {
	const (
		MaxBody       = int64(1 * mem.MiB)
		MaxHistory    = int64(16 * mem.MiB)
		Timeout       = 15 * time.Second
		BroadcastBody = int64(1 * mem.MiB)
	)
	return map[string]api.API{
		api.PathVersion: {
			Method:  http.MethodGet,
			Path:    api.PathVersion,
			MaxBody: 0,
			Timeout: 10 * time.Second,
			Handler: http.HandlerFunc(r.handleVersion),
		},
		api.PathStatus: {
			Method:  http.MethodGet,
			Path:    api.PathStatus,
			MaxBody: 0,
			Timeout: 15 * time.Second,
			Handler: http.HandlerFunc(r.handleStatus),
		},
		api.PathMetrics: {
			Method:  http.MethodGet,
			Path:    api.PathMetrics,
			MaxBody: 0,
			Timeout: 15 * time.Second,
			Handler: http.HandlerFunc(r.handleMetrics),
		},
		api.PathLogError: {
			Method:  http.MethodGet,
			Path:    api.PathLogError,
			MaxBody: 0,
			Timeout: 0, // stream until the client disconnects
			Handler: http.HandlerFunc(r.handleErrorLog),
		},

		api.PathPing: {
			Method:  http.MethodPut,
			Path:    api.PathPing,
			MaxBody: int64(1 * mem.KiB),
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handlePing),
		},
		api.PathAccountOpen: {
			Method:  http.MethodPut,
			Path:    api.PathAccountOpen,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleOpenAccount),
		},
		api.PathAccountCheck: {
			Method:  http.MethodPut,
			Path:    api.PathAccountCheck,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleCheckAccount),
		},
		api.PathAccountAudit: {
			Method:  http.MethodPut,
			Path:    api.PathAccountAudit,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleAudit),
		},
		api.PathAccountRID: {
			Method:  http.MethodPut,
			Path:    api.PathAccountRID,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleRID),
		},
		api.PathAccountSend: {
			Method:  http.MethodPut,
			Path:    api.PathAccountSend,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleSendAmount),
		},
		api.PathAccountReceive: {
			Method:  http.MethodPut,
			Path:    api.PathAccountReceive,
			MaxBody: MaxBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleReceiveAmount),
		},
		api.PathAccountCheckWriteBack: {
			Method:  http.MethodPut,
			Path:    api.PathAccountCheckWriteBack,
			MaxBody: MaxHistory,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleCheckWriteBack),
		},
		api.PathAccountAuditWriteBack: {
			Method:  http.MethodPut,
			Path:    api.PathAccountAuditWriteBack,
			MaxBody: MaxHistory,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleAuditWriteBack),
		},

		api.PathBroadcastEcho: {
			Method:  http.MethodPut,
			Path:    api.PathBroadcastEcho,
			MaxBody: BroadcastBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleEcho),
		},
		api.PathBroadcastReady: {
			Method:  http.MethodPut,
			Path:    api.PathBroadcastReady,
			MaxBody: BroadcastBody,
			Timeout: Timeout,
			Handler: http.HandlerFunc(r.handleReady),
		},
	}
}

func (r *Replica) handleVersion(w http.ResponseWriter, req *http.Request) {
	info := sys.BinaryInfo()
	api.Reply(w, http.StatusOK, api.VersionResponse{
		Version: info.Version,
		Commit:  info.CommitID,
	})
}

func (r *Replica) handleStatus(w http.ResponseWriter, req *http.Request) {
	status := r.Status()
	status.Version = sys.BinaryInfo().Version
	status.OS = runtime.GOOS
	status.Arch = runtime.GOARCH
	api.Reply(w, http.StatusOK, status)
}

func (r *Replica) handleMetrics(w http.ResponseWriter, req *http.Request) {
	contentType := expfmt.Negotiate(req.Header)
	w.Header().Set(headers.ContentType, string(contentType))
	w.WriteHeader(http.StatusOK)

	r.metrics.EncodeTo(expfmt.NewEncoder(w, contentType))
}

func (r *Replica) handleErrorLog(w http.ResponseWriter, req *http.Request) {
	if len(req.Header[headers.Accept]) > 0 && !headers.Accepts(req.Header, headers.ContentTypeJSONLines) {
		api.Failf(w, http.StatusNotAcceptable, "error log is only available as '%s'", headers.ContentTypeJSONLines)
		return
	}

	w.Header().Set(headers.ContentType, headers.ContentTypeJSONLines)
	w.WriteHeader(http.StatusOK)

	dropped, unsubscribe := r.errorLog.out.Subscribe(w)
	defer unsubscribe()

	select {
	case <-req.Context().Done():
	case <-dropped:
	}
}

func (r *Replica) handlePing(w http.ResponseWriter, req *http.Request) {
	var body protocol.PingRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}

	resp := r.Ping(&body)
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleOpenAccount(w http.ResponseWriter, req *http.Request) {
	var body protocol.OpenRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Key)

	resp, err := r.OpenAccount(&body)
	if err != nil {
		r.log.ErrorContext(req.Context(), "failed to open account", "err", err)
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleCheckAccount(w http.ResponseWriter, req *http.Request) {
	var body protocol.ReadRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Requester)

	resp, err := r.CheckAccount(&body)
	if err != nil {
		r.log.ErrorContext(req.Context(), "failed to check account", "err", err)
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleAudit(w http.ResponseWriter, req *http.Request) {
	var body protocol.ReadRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Requester)

	resp, err := r.Audit(&body)
	if err != nil {
		r.log.ErrorContext(req.Context(), "failed to audit account", "err", err)
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleRID(w http.ResponseWriter, req *http.Request) {
	var body protocol.RIDRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}

	resp, err := r.RID(&body)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleSendAmount(w http.ResponseWriter, req *http.Request) {
	var body protocol.SendRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Transaction.SourceKey)

	resp, err := r.SendAmount(req.Context(), &body)
	if err != nil {
		if req.Context().Err() == nil {
			r.log.ErrorContext(req.Context(), "failed to send amount", "err", err)
		}
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleReceiveAmount(w http.ResponseWriter, req *http.Request) {
	var body protocol.ReceiveRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Key)

	resp, err := r.ReceiveAmount(req.Context(), &body)
	if err != nil {
		if req.Context().Err() == nil {
			r.log.ErrorContext(req.Context(), "failed to receive amount", "err", err)
		}
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleCheckWriteBack(w http.ResponseWriter, req *http.Request) {
	var body protocol.CheckWriteBackRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Requester)

	resp, err := r.CheckWriteBack(&body)
	if err != nil {
		r.log.ErrorContext(req.Context(), "failed to write back account state", "err", err)
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleAuditWriteBack(w http.ResponseWriter, req *http.Request) {
	var body protocol.AuditWriteBackRequest
	if err := api.ReadBody(req, &body); err != nil {
		api.Fail(w, err)
		return
	}
	setIdentity(req, body.Requester)

	resp, err := r.AuditWriteBack(&body)
	if err != nil {
		r.log.ErrorContext(req.Context(), "failed to write back account history", "err", err)
		api.Fail(w, err)
		return
	}
	api.Reply(w, statusOf(resp.Message), resp)
}

func (r *Replica) handleEcho(w http.ResponseWriter, req *http.Request) {
	var msg broadcast.Message
	if err := api.ReadBody(req, &msg); err != nil {
		api.Fail(w, err)
		return
	}
	if err := r.Echo(&msg); err != nil {
		api.Failf(w, http.StatusForbidden, "%v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *Replica) handleReady(w http.ResponseWriter, req *http.Request) {
	var msg broadcast.Message
	if err := api.ReadBody(req, &msg); err != nil {
		api.Fail(w, err)
		return
	}
	if err := r.Ready(&msg); err != nil {
		api.Failf(w, http.StatusForbidden, "%v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
