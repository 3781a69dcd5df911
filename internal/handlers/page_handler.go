package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
	chunkPreviewLen  = 120
)

// PageHandler renders the reading list and article pages
type PageHandler struct {
	storage   interfaces.ArticleStorage
	logger    arbor.ILogger
	templates *template.Template
	markdown  goldmark.Markdown
}

// articleView adds display fields to an article
type articleView struct {
	*models.Article
	Host   string
	Status string
}

func newArticleView(article *models.Article) articleView {
	status := ""
	if article.CrawlStatus != models.CrawlStatusFetched {
		status = string(article.CrawlStatus)
		if label := article.Classification(); label != "" && label != status {
			status += ": " + label
		}
	}
	return articleView{Article: article, Host: common.HostOf(article.URL), Status: status}
}

// chunkView summarises one embedded chunk on the article page
type chunkView struct {
	Index   int
	Runes   int
	Preview string
}

func newChunkView(chunk models.Chunk) chunkView {
	text := strings.Join(strings.Fields(chunk.Text), " ")
	runes := []rune(text)
	preview := text
	if len(runes) > chunkPreviewLen {
		preview = string(runes[:chunkPreviewLen]) + "…"
	}
	return chunkView{Index: chunk.Index, Runes: utf8.RuneCountInString(chunk.Text), Preview: preview}
}

// NewPageHandler creates a page handler. Raw HTML inside stored markdown is not passed through.
func NewPageHandler(storage interfaces.ArticleStorage, logger arbor.ILogger, templates *template.Template) *PageHandler {
	return &PageHandler{
		storage:   storage,
		logger:    logger,
		templates: templates,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// ListPage serves the articles with the given read status
func (h *PageHandler) ListPage(status models.ReadStatus, heading string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}

		articles, err := h.storage.ListByReadStatus(r.Context(), status, GetLimitParam(r, defaultListLimit, maxListLimit))
		if err != nil {
			h.logger.Error().Err(err).Str("status", string(status)).Msg("Failed to list articles")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		views := make([]articleView, len(articles))
		for i, article := range articles {
			views[i] = newArticleView(article)
		}

		h.render(w, "list.html", map[string]any{
			"Heading":  heading,
			"Articles": views,
		})
	}
}

// ArticlePage serves GET /article/{id}, rendering the extracted markdown
func (h *PageHandler) ArticlePage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	article, err := h.storage.GetArticleByPublicID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load article")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var content template.HTML
	if article.ExtractedText != "" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(article.ExtractedText), &buf); err != nil {
			h.logger.Warn().Err(err).Str("url", article.URL).Msg("Failed to render markdown")
		} else {
			content = template.HTML(buf.String())
		}
	}

	var chunks []chunkView
	if article.ChunkCount > 0 {
		stored, err := h.storage.GetChunks(r.Context(), article.URL)
		if err != nil {
			h.logger.Warn().Err(err).Str("url", article.URL).Msg("Failed to load chunks")
		}
		for _, chunk := range stored {
			chunks = append(chunks, newChunkView(chunk))
		}
	}

	view := newArticleView(article)
	h.render(w, "article.html", map[string]any{
		"Article": article,
		"Host":    view.Host,
		"Status":  view.Status,
		"Content": content,
		"Chunks":  chunks,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error().
			Err(err).
			Str("template", name).
			Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
