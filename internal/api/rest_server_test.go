package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annel0/rpg-server/internal/game"
	"github.com/annel0/rpg-server/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) *RestServer {
	t.Helper()
	// Свежий регистр на каждый тест, иначе повторная регистрация
	// метрик middleware паникует.
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return NewRestServer(Config{Port: ":0", Game: game.NewGame(st, nil)})
}

func doJSON(t *testing.T, rs *RestServer, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Ошибка кодирования тела запроса: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	rs.Router().ServeHTTP(w, req)

	resp := make(map[string]interface{})
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Ответ не JSON: %v (%s)", err, w.Body.String())
		}
	}
	return w, resp
}

func handshake(t *testing.T, rs *RestServer) string {
	t.Helper()
	w, resp := doJSON(t, rs, http.MethodPost, "/api/auth/handshake", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Рукопожатие вернуло %d: %s", w.Code, w.Body.String())
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("Пустой токен в ответе рукопожатия")
	}
	return token
}

func TestRestFullFlow(t *testing.T) {
	rs := newTestServer(t)
	token := handshake(t, rs)

	// Регистрация
	w, resp := doJSON(t, rs, http.MethodPost, "/api/register", token, map[string]string{"username": "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Регистрация вернула %d: %s", w.Code, w.Body.String())
	}

	// Повторная регистрация идемпотентна
	w, resp = doJSON(t, rs, http.MethodPost, "/api/register", token, map[string]string{"username": "alice"})
	if w.Code != http.StatusOK {
		t.Errorf("Повторная регистрация вернула %d", w.Code)
	}

	// Стартовые персонажи в списке
	w, resp = doJSON(t, rs, http.MethodGet, "/api/characters", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Список персонажей вернул %d", w.Code)
	}
	data := resp["data"].(map[string]interface{})
	if total := data["total"].(float64); total != 2 {
		t.Errorf("Ожидалось 2 стартовых персонажа, получено %v", total)
	}

	// Создание персонажа
	w, resp = doJSON(t, rs, http.MethodPost, "/api/characters", token, map[string]interface{}{
		"name":  "Aria",
		"class": "mage",
		"appearance": map[string]string{
			"skin": "pale", "hair": "silver", "eyes": "blue", "outfit": "robe",
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Создание персонажа вернуло %d: %s", w.Code, w.Body.String())
	}
	charID := resp["data"].(map[string]interface{})["character_id"].(float64)

	// Вход
	w, _ = doJSON(t, rs, http.MethodPost, "/api/login", token, map[string]interface{}{"character_id": charID})
	if w.Code != http.StatusOK {
		t.Fatalf("Вход вернул %d: %s", w.Code, w.Body.String())
	}

	// Перемещение
	path := "/api/characters/" + jsonNumber(charID) + "/position"
	w, _ = doJSON(t, rs, http.MethodPut, path, token, map[string]interface{}{
		"x": 12.5, "y": -3.0, "direction": "left",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Перемещение вернуло %d: %s", w.Code, w.Body.String())
	}

	// Чтение позиции
	w, resp = doJSON(t, rs, http.MethodGet, path, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Чтение позиции вернуло %d", w.Code)
	}
	pos := resp["data"].(map[string]interface{})
	if pos["x"].(float64) != 12.5 || pos["direction"].(string) != "left" {
		t.Errorf("Неверная позиция: %v", pos)
	}

	// Выход
	w, _ = doJSON(t, rs, http.MethodPost, "/api/logout", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Выход вернул %d", w.Code)
	}
}

func TestRestAuthRequired(t *testing.T) {
	rs := newTestServer(t)

	// Без токена
	w, _ := doJSON(t, rs, http.MethodGet, "/api/characters", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Без токена ожидался 401, получено %d", w.Code)
	}

	// С мусорным токеном
	w, _ = doJSON(t, rs, http.MethodGet, "/api/characters", "garbage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("С мусорным токеном ожидался 401, получено %d", w.Code)
	}
}

func TestRestErrorMapping(t *testing.T) {
	rs := newTestServer(t)
	alice := handshake(t, rs)
	bob := handshake(t, rs)

	doJSON(t, rs, http.MethodPost, "/api/register", alice, map[string]string{"username": "alice"})
	doJSON(t, rs, http.MethodPost, "/api/register", bob, map[string]string{"username": "bob"})

	_, resp := doJSON(t, rs, http.MethodPost, "/api/characters", alice, map[string]interface{}{
		"name": "Aria", "class": "mage",
	})
	charID := resp["data"].(map[string]interface{})["character_id"].(float64)

	// Занятое имя — 409
	w, _ := doJSON(t, rs, http.MethodPost, "/api/characters", bob, map[string]interface{}{
		"name": "ARIA", "class": "warrior",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Занятое имя: ожидался 409, получено %d", w.Code)
	}

	// Чужое перемещение — 403
	path := "/api/characters/" + jsonNumber(charID) + "/position"
	w, _ = doJSON(t, rs, http.MethodPut, path, bob, map[string]interface{}{"x": 1.0, "y": 1.0})
	if w.Code != http.StatusForbidden {
		t.Errorf("Чужое перемещение: ожидался 403, получено %d", w.Code)
	}

	// Несуществующий персонаж — 404
	w, _ = doJSON(t, rs, http.MethodGet, "/api/characters/99999", alice, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Несуществующий персонаж: ожидался 404, получено %d", w.Code)
	}

	// Выход без сессии — 409
	w, _ = doJSON(t, rs, http.MethodPost, "/api/logout", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Первый выход вернул %d", w.Code)
	}
	w, _ = doJSON(t, rs, http.MethodPost, "/api/logout", alice, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Выход без сессии: ожидался 409, получено %d", w.Code)
	}

	// Операция незарегистрированного аккаунта — 403
	ghost := handshake(t, rs)
	w, _ = doJSON(t, rs, http.MethodPost, "/api/characters", ghost, map[string]interface{}{
		"name": "Ghost", "class": "rogue",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Незарегистрированный аккаунт: ожидался 403, получено %d", w.Code)
	}
}

func TestRestHealth(t *testing.T) {
	rs := newTestServer(t)
	w, resp := doJSON(t, rs, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Health вернул %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("Неверный статус health: %v", resp["status"])
	}
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(uint64(v))
	return string(b)
}
