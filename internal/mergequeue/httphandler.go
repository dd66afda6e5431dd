package mergequeue

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type httpRespWriter struct {
	http.ResponseWriter
	logger *zap.Logger
}

func newHTTPRespWriter(logger *zap.Logger, resp http.ResponseWriter) *httpRespWriter {
	return &httpRespWriter{
		ResponseWriter: resp,
		logger:         logger,
	}
}

// WriteStr writes a string to the http response write.
// If an error happens, it is logged with info priority and false is returned.
// If it suceeded true is returned.
func (rw *httpRespWriter) WriteStr(str string) (wasSuccessful bool) {
	_, err := rw.ResponseWriter.Write([]byte(str))
	if err != nil {
		rw.logger.Info("sending http response failed", zap.Error(err))
		return false
	}

	return true
}

// QueueListHandler lists the merge queues of repositories as plain text.
// The state is read from GitHub for every request.
type QueueListHandler struct {
	engine *Engine
	repos  []Repository
	logger *zap.Logger
}

func NewQueueListHandler(engine *Engine, repos []Repository) *QueueListHandler {
	return &QueueListHandler{
		engine: engine,
		repos:  repos,
		logger: engine.logger.Named("http_handler"),
	}
}

func (h *QueueListHandler) ServeHTTP(respWr http.ResponseWriter, req *http.Request) {
	var result strings.Builder

	resp := newHTTPRespWriter(h.logger, respWr)

	resp.Header().Add("Content-Type", "text/plain")

	if len(h.repos) == 0 {
		resp.WriteStr("no repositories configured\n")
		return
	}

	for i := range h.repos {
		repo := &h.repos[i]

		snapshot, err := h.engine.QueueState(req.Context(), repo)
		if err != nil {
			h.logger.Info(
				"retrieving queue state failed",
				zap.Error(err),
				zap.Stringer("repository", repo),
			)
			http.Error(respWr, err.Error(), http.StatusBadGateway)
			return
		}

		writeSnapshot(&result, snapshot)
	}

	resp.WriteStr(result.String())
}

func writeSnapshot(sb *strings.Builder, snapshot *QueueSnapshot) {
	sb.WriteString(fmt.Sprintf("Repository: %s\n", &snapshot.Repository))

	if len(snapshot.Merging.PullRequests) == 0 {
		sb.WriteString("\tmerging: -\n")
	}

	for _, pr := range snapshot.Merging.PullRequests {
		sb.WriteString(fmt.Sprintf("\tmerging: PR: %-4d\t%s\t%s\n", pr.Number, pr.State, pr.Title))
	}

	for i, pr := range snapshot.Queued.PullRequests {
		sb.WriteString(fmt.Sprintf("\t#%-4d   PR: %-4d\t%s\t%s\n", i+1, pr.Number, pr.State, pr.Title))
	}
}
