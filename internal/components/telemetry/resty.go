package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type instrumentResty struct {
	tel       API
	idcounter *uint64
}

// InstrumentResty reports every request made by the client to tel, responses
// with a status >= 400 and transport errors are reported as warnings.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	i := instrumentResty{tel: tel, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need to rely on chrono because it does not depend on the
	// absolute time, just the difference in time.
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	ctx := context.WithValue(req.Context(), reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func requestInfo(req *resty.Request) (reqCtx, bool) {
	if req == nil {
		return reqCtx{}, false
	}
	info, ok := req.Context().Value(reqCtxKey).(reqCtx)
	return info, ok
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	info, ok := requestInfo(res.Request)
	if !ok {
		return nil
	}
	duration := time.Since(info.startTime)

	if res.StatusCode() >= 400 {
		i.tel.ReportWarning(
			report_resty_response,
			info.id,
			res.Request.Method,
			res.Request.URL,
			res.Status(),
			duration.String(),
		)
		return nil
	}
	i.tel.ReportDebug(
		report_resty_response,
		info.id,
		duration.String(),
		res.Status(),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	info, ok := requestInfo(req)
	if !ok {
		i.tel.ReportWarning(report_resty_response, err)
		return
	}
	i.tel.ReportWarning(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		time.Since(info.startTime).String(),
	)
}
