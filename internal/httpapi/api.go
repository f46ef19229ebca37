package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/fetch"
	"github.com/John-Robertt/subsync-go/internal/mapping"
	"github.com/John-Robertt/subsync-go/internal/merger"
	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/render"
	"github.com/John-Robertt/subsync-go/internal/syncdef"
)

type apiHandler struct {
	opt Options
}

func (h apiHandler) readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", apiError(http.StatusRequestEntityTooLarge, model.AppError{
				Code:    "TOO_LARGE",
				Message: fmt.Sprintf("请求体过大（>%d bytes）", h.opt.MaxBodyBytes),
				Stage:   "validate_request",
			}, err)
		}
		return "", requestError("INVALID_ARGUMENT", "读取请求体失败", err.Error())
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", requestError("INVALID_ARGUMENT", "请求体不能为空", "")
	}
	return string(body), nil
}

// handleSync runs the sync definition in the request body.
//
// output=report (default) answers with the JSON report; output=config answers
// with the merged config alone, encoded per format, as a download.
func (h apiHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	output, err := singleQuery(q, "output")
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if output == "" {
		output = "report"
	}
	if output != "report" && output != "config" {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "不支持的 output（仅支持 report/config）", output))
		return
	}
	formatRaw, err := singleQuery(q, "format")
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	format, ok := render.ParseFormat(formatRaw)
	if !ok {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "不支持的 format（仅支持 json/yaml）", formatRaw))
		return
	}
	filename, err := singleQuery(q, "filename")
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	text, err := h.readBody(w, r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	def, err := syncdef.Parse("", text)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := h.checkLocations(def); err != nil {
		writeErrorFromErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opt.SyncTimeout)
	defer cancel()

	m := &merger.Merger{
		Fetcher: &fetch.Loader{Options: fetch.Options{Timeout: h.opt.FetchTimeout, BaseDir: h.opt.BaseDir}},
		Log:     h.opt.Log,
		Options: merger.Options{Match: h.opt.Match},
	}
	res, err := m.Run(ctx, def)
	if err != nil {
		metricsIncSync(false, nil)
		writeErrorFromErr(w, err)
		return
	}
	metricsIncSync(true, res)

	if output == "report" {
		WriteJSON(w, http.StatusOK, res)
		return
	}
	b, err := render.Encode(res.Config, format)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if err := setAttachmentHeaders(w, filename, format); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// checkLocations refuses local files unless the server allows them.
func (h apiHandler) checkLocations(def *syncdef.Definition) error {
	if h.opt.AllowLocalSources {
		return nil
	}
	locs := []syncdef.Location{def.Master}
	for _, s := range def.Sources {
		locs = append(locs, s.Location)
	}
	for _, loc := range locs {
		if loc.Source == syncdef.SourceLocal {
			return apiError(http.StatusForbidden, model.AppError{
				Code:    "LOCAL_SOURCE_FORBIDDEN",
				Message: "HTTP 接口不允许读取本地文件",
				Stage:   "validate_request",
				Snippet: loc.Path,
				Hint:    "use source: url",
			}, nil)
		}
	}
	return nil
}

type mappingRequest struct {
	Source   map[string]any `json:"source"`
	Target   map[string]any `json:"target"`
	Mappings []any          `json:"mappings"`
}

type mappingResponse struct {
	Config map[string]any   `json:"config"`
	Errors []model.AppError `json:"errors"`
}

// handleMappingApply applies the request's mapping rules, or the server's
// definition when it has none, to target.
func (h apiHandler) handleMappingApply(w http.ResponseWriter, r *http.Request) {
	text, err := h.readBody(w, r)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	var req mappingRequest
	if err := json.UnmarshalFromString(text, &req); err != nil {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error()))
		return
	}
	if req.Source == nil {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "source 不能为空", ""))
		return
	}

	def := h.opt.Mappings
	if req.Mappings != nil {
		def, err = mapping.FromTree(map[string]any{"mappings": req.Mappings})
		if err != nil {
			writeErrorFromErr(w, err)
			return
		}
	}

	applier := &mapping.Applier{Log: h.opt.Log}
	out, ruleErrs := applier.Apply(req.Source, req.Target, def.Mappings)
	resp := mappingResponse{Config: out, Errors: make([]model.AppError, 0, len(ruleErrs))}
	for _, re := range ruleErrs {
		resp.Errors = append(resp.Errors, re.AppError)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func singleQuery(q url.Values, key string) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return strings.TrimSpace(values[0]), nil
}
