package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
)

// CatalogHandler 签名目录只读查询
type CatalogHandler struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

func NewCatalogHandler(cat *catalog.Catalog, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, logger: logger}
}

// ListSignatures 列出当前加载的全部签名（按匹配评估顺序）
// GET /api/catalog
func (h *CatalogHandler) ListSignatures(c *gin.Context) {
	sigs := h.catalog.Signatures()

	items := make([]gin.H, len(sigs))
	for i, sig := range sigs {
		rules := make([]gin.H, len(sig.Rules))
		for j, rule := range sig.Rules {
			rules[j] = gin.H{
				"kind":    rule.Kind,
				"pattern": rule.Pattern,
			}
		}
		items[i] = gin.H{
			"id":          sig.ID,
			"rank":        sig.Rank,
			"composition": sig.Composition,
			"rules":       rules,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":      len(items),
		"signatures": items,
	})
}
