package catalog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cartelera-live/cartelera/internal/auth"
)

const handlersSecret = "handlers-test-secret-0123456789"

func newTestAPI(t *testing.T) (*httptest.Server, *auth.Resolver, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	resolver := auth.NewResolver(handlersSecret)
	svc := NewService(newMemStore(), bus, nil)
	h := NewHandlers(svc, resolver, nil)

	mux := http.NewServeMux()
	h.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, resolver, bus
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMutationsRequireAdminToken(t *testing.T) {
	ts, resolver, bus := newTestAPI(t)

	body := ProductInput{Name: "Empanada", Price: 300}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/productos", "", body)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	kioskToken, err := resolver.IssueDeviceToken("kiosk", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/productos", kioskToken, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("kiosk token: status = %d, want 403", resp.StatusCode)
	}

	if len(bus.published()) != 0 {
		t.Errorf("refused requests published events")
	}
}

func TestCreateProductFlow(t *testing.T) {
	ts, resolver, bus := newTestAPI(t)

	adminToken, err := resolver.IssueUserToken("admin-1", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/productos", adminToken,
		ProductInput{Name: "Empanada", Price: 300})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created Product
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.LocalID != 7 {
		t.Errorf("local_id = %d, want the token's binding", created.LocalID)
	}

	published := bus.published()
	if len(published) != 1 || published[0].Target.LocalID != 7 {
		t.Fatalf("published = %+v", published)
	}
}

func TestUnboundAdminNeedsExplicitLocal(t *testing.T) {
	ts, resolver, _ := newTestAPI(t)

	monitorToken, err := resolver.IssueUserToken("admin-1", 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/productos", monitorToken,
		ProductInput{Name: "Empanada", Price: 300})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("without local_id: status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/productos?local_id=9", monitorToken,
		ProductInput{Name: "Empanada", Price: 300})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("with local_id: status = %d, want 201", resp.StatusCode)
	}
}

func TestMenuFetchWithKioskToken(t *testing.T) {
	ts, resolver, _ := newTestAPI(t)

	kioskToken, err := resolver.IssueDeviceToken("kiosk", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/menu", kioskToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var menu Menu
	if err := json.NewDecoder(resp.Body).Decode(&menu); err != nil {
		t.Fatal(err)
	}
	if menu.LocalID != 7 {
		t.Errorf("menu local_id = %d, want 7", menu.LocalID)
	}
}

func TestListProductsAndCategories(t *testing.T) {
	ts, resolver, _ := newTestAPI(t)

	adminToken, err := resolver.IssueUserToken("admin-1", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	// Listings start empty but present, as JSON arrays.
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/productos", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty list status = %d", resp.StatusCode)
	}
	var products []Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatalf("decode empty list: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("empty listing returned %d products", len(products))
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/productos", adminToken,
		ProductInput{Name: "Empanada", Price: 300})
	doJSON(t, http.MethodPost, ts.URL+"/api/categorias", adminToken,
		CategoryInput{Name: "Entradas"})

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/productos", adminToken, nil)
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Name != "Empanada" {
		t.Errorf("products = %+v", products)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/categorias", adminToken, nil)
	var categories []Category
	if err := json.NewDecoder(resp.Body).Decode(&categories); err != nil {
		t.Fatal(err)
	}
	if len(categories) != 1 || categories[0].Name != "Entradas" {
		t.Errorf("categories = %+v", categories)
	}

	// Listings are an admin surface; kiosks read the menu instead.
	kioskToken, err := resolver.IssueDeviceToken("kiosk", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/productos", kioskToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("kiosk listing status = %d, want 403", resp.StatusCode)
	}
}

func TestValidationErrorMapsTo422(t *testing.T) {
	ts, resolver, _ := newTestAPI(t)

	adminToken, err := resolver.IssueUserToken("admin-1", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/productos", adminToken,
		ProductInput{Name: "", Price: 300})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestMissingProductMapsTo404(t *testing.T) {
	ts, resolver, _ := newTestAPI(t)

	adminToken, err := resolver.IssueUserToken("admin-1", 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/productos/12345", adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
