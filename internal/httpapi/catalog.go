package httpapi

import (
	"net/http"
	"sort"
	"sync"

	"hashscope/internal/utils"
)

// CatalogEntry describes one billable data endpoint.
type CatalogEntry struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
	CostWei     int64  `json:"cost_wei"`
}

// Catalog is an explicit registry of the gateway's data endpoints. It is
// built at wiring time and handed to the handler; nothing registers into a
// process-global.
type Catalog struct {
	mu      sync.RWMutex
	entries []CatalogEntry
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register adds one endpoint to the catalog.
func (c *Catalog) Register(entry CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// List returns the catalog sorted by category then name.
func (c *Catalog) List() []CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]CatalogEntry(nil), c.entries...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CatalogHandler serves the endpoint catalog.
type CatalogHandler struct {
	catalog *Catalog
}

func NewCatalogHandler(catalog *Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List handles GET /api/v1/catalog.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"apis": h.catalog.List(),
	})
}
