package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"FlowSieve/internal/check"
	"FlowSieve/internal/dispatch"
	"FlowSieve/internal/model"
	"FlowSieve/internal/repo"
	"FlowSieve/internal/site"
)

const defaultSampleRecords = 100

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	site *site.Site
}

// filterRequest selects repository files and filter rules. Rule fields use
// the same syntax as the fs-filter command line switches.
type filterRequest struct {
	Class     string `json:"class"`
	Type      string `json:"type"`
	Flowtypes string `json:"flowtypes"`
	Sensors   string `json:"sensors"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	Protocols string `json:"protocols"`
	SPort     string `json:"sport"`
	DPort     string `json:"dport"`
	APort     string `json:"aport"`
	SAddress  string `json:"saddress"`
	DAddress  string `json:"daddress"`
	Bytes     string `json:"bytes"`
	Packets   string `json:"packets"`

	Threads    int    `json:"threads"`
	MaxRecords uint64 `json:"max_records"`
}

type countJSON struct {
	Flows uint64 `json:"flows"`
	Pkts  uint64 `json:"packets"`
	Bytes uint64 `json:"bytes"`
}

type recordJSON struct {
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	SrcPort   uint16    `json:"src_port"`
	DstPort   uint16    `json:"dst_port"`
	Proto     uint8     `json:"protocol"`
	TCPFlags  uint8     `json:"tcp_flags"`
	Packets   uint64    `json:"packets"`
	Bytes     uint64    `json:"bytes"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration_seconds"`
	Class     string    `json:"class"`
	Type      string    `json:"type"`
	Sensor    string    `json:"sensor"`
}

type filterResponse struct {
	Files   uint32       `json:"files"`
	Read    countJSON    `json:"read"`
	Pass    countJSON    `json:"pass"`
	Records []recordJSON `json:"records"`
}

// sampleWriter retains passing records up to the group cutoff.
type sampleWriter struct {
	mu   sync.Mutex
	recs []model.FlowRec
}

func (w *sampleWriter) Write(r *model.FlowRec) error {
	w.mu.Lock()
	w.recs = append(w.recs, *r)
	w.mu.Unlock()
	return nil
}

func (w *sampleWriter) Close() error { return nil }

// filterFlowsHandler runs one filter query over the repository.
func (h *APIHandler) filterFlowsHandler(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.StartDate == "" {
		http.Error(w, "start_date is required", http.StatusBadRequest)
		return
	}
	if req.MaxRecords == 0 {
		req.MaxRecords = defaultSampleRecords
	}

	sel, err := repo.ParseSelection(h.site, req.Class, req.Type, req.Flowtypes, req.Sensors)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sel.Start, sel.End, err = repo.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	enum, err := repo.NewEnumerator(h.site, sel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	chain, err := buildChain(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sample := &sampleWriter{}
	dests := dispatch.NewDestSet()
	if err := dests.Add(dispatch.GroupPass, "sample", sample, false); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	dests.SetMaxRecords(dispatch.GroupPass, req.MaxRecords)

	d, err := dispatch.New(dispatch.Options{
		Chain:     chain,
		Dests:     dests,
		NextFile:  enum.Next,
		Threads:   req.Threads,
		WantStats: true,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, runErr := d.Run()
	if runErr != nil {
		http.Error(w, fmt.Sprintf("filter run failed: %v", runErr), http.StatusInternalServerError)
		return
	}

	resp := filterResponse{
		Files:   stats.Files,
		Read:    countJSON{Flows: stats.Read.Flows, Pkts: stats.Read.Pkts, Bytes: stats.Read.Bytes},
		Pass:    countJSON{Flows: stats.Pass.Flows, Pkts: stats.Pass.Pkts, Bytes: stats.Pass.Bytes},
		Records: make([]recordJSON, 0, len(sample.recs)),
	}
	for i := range sample.recs {
		resp.Records = append(resp.Records, h.toJSON(&sample.recs[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) toJSON(rec *model.FlowRec) recordJSON {
	out := recordJSON{
		SrcIP:     rec.SrcIP.String(),
		DstIP:     rec.DstIP.String(),
		SrcPort:   rec.SrcPort,
		DstPort:   rec.DstPort,
		Proto:     rec.Proto,
		TCPFlags:  rec.TCPFlags,
		Packets:   rec.Packets,
		Bytes:     rec.Bytes,
		StartTime: rec.StartTime,
		Duration:  rec.Duration.Seconds(),
		Sensor:    h.site.SensorName(rec.SensorID),
	}
	if ft, ok := h.site.FlowtypeByID(rec.FlowtypeID); ok {
		out.Class, out.Type = ft.Class, ft.Type
	}
	return out
}

func buildChain(req *filterRequest) (*check.Chain, error) {
	b := &check.Builtin{}
	if req.Protocols != "" {
		if err := b.SetProtocols(req.Protocols); err != nil {
			return nil, err
		}
	}
	if req.SPort != "" {
		if err := b.SetSPorts(req.SPort); err != nil {
			return nil, err
		}
	}
	if req.DPort != "" {
		if err := b.SetDPorts(req.DPort); err != nil {
			return nil, err
		}
	}
	if req.APort != "" {
		if err := b.SetAPorts(req.APort); err != nil {
			return nil, err
		}
	}
	if req.SAddress != "" {
		if err := b.SetSAddress(req.SAddress, false); err != nil {
			return nil, err
		}
	}
	if req.DAddress != "" {
		if err := b.SetDAddress(req.DAddress, false); err != nil {
			return nil, err
		}
	}
	if req.Bytes != "" {
		if err := b.SetBytes(req.Bytes); err != nil {
			return nil, err
		}
	}
	if req.Packets != "" {
		if err := b.SetPackets(req.Packets); err != nil {
			return nil, err
		}
	}
	chain := &check.Chain{}
	if b.Active() {
		chain.Append(b)
	}
	return chain, nil
}

// siteHandler reports the configured classes, types, and sensors.
func (h *APIHandler) siteHandler(w http.ResponseWriter, r *http.Request) {
	type flowtypeJSON struct {
		ID    uint16 `json:"id"`
		Class string `json:"class"`
		Type  string `json:"type"`
	}
	type siteJSON struct {
		Root      string         `json:"root"`
		Classes   []string       `json:"classes"`
		Flowtypes []flowtypeJSON `json:"flowtypes"`
	}
	out := siteJSON{
		Root:    h.site.Root(),
		Classes: h.site.Classes(),
	}
	for _, ft := range h.site.Flowtypes() {
		out.Flowtypes = append(out.Flowtypes, flowtypeJSON{ID: ft.ID, Class: ft.Class, Type: ft.Type})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
