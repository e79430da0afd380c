package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/rpg-server/internal/auth"
	"github.com/annel0/rpg-server/internal/game"
	"github.com/annel0/rpg-server/internal/middleware"
	"github.com/annel0/rpg-server/internal/registry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер — хост-адаптер игровых
// операций. Сервер выдаёт identity при рукопожатии, а дальше каждая
// операция выполняется от имени identity из JWT с серверным временем.
type RestServer struct {
	router  *gin.Engine
	game    *game.Game
	port    string
	metrics *ServerMetrics
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port string     // порт для запуска сервера, например ":8088"
	Game *game.Game // игровой фасад
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	router.Use(otelgin.Middleware("rpg_rest"))

	promMw := middleware.NewPrometheusMiddleware("rpg_rest")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:  router,
		game:    config.Game,
		port:    config.Port,
		metrics: NewServerMetrics(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")

	// Рукопожатие: выдаёт identity и токен, открывает сессию подключения.
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/handshake", rs.handleHandshake)
	}

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.POST("/register", rs.handleRegister)
		protected.GET("/account", rs.handleAccount)

		protected.POST("/characters", rs.handleCreateCharacter)
		protected.GET("/characters", rs.handleListCharacters)
		protected.GET("/characters/:id", rs.handleGetCharacter)
		protected.GET("/characters/:id/appearance", rs.handleGetAppearance)
		protected.GET("/characters/:id/position", rs.handleGetPosition)
		protected.PUT("/characters/:id/position", rs.handleUpdatePosition)
		protected.GET("/characters/by-name/:name", rs.handleGetCharacterByName)

		protected.POST("/login", rs.handleLogin)
		protected.POST("/logout", rs.handleLogout)
		protected.POST("/disconnect", rs.handleDisconnect)
		protected.GET("/session", rs.handleSession)

		protected.GET("/stats", rs.handleStats)
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

//================ Запросы и ответы =================//

// HandshakeResponse представляет ответ на рукопожатие
type HandshakeResponse struct {
	Success  bool   `json:"success"`
	Identity string `json:"identity,omitempty"`
	Token    string `json:"token,omitempty"`
	Message  string `json:"message"`
}

// RegisterRequest представляет запрос на регистрацию аккаунта
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
}

// CreateCharacterRequest представляет запрос на создание персонажа
type CreateCharacterRequest struct {
	Name       string `json:"name" binding:"required"`
	Class      string `json:"class" binding:"required"`
	Appearance struct {
		Skin   string `json:"skin"`
		Hair   string `json:"hair"`
		Eyes   string `json:"eyes"`
		Outfit string `json:"outfit"`
	} `json:"appearance"`
}

// UpdatePositionRequest представляет запрос на перемещение персонажа
type UpdatePositionRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

// LoginRequest представляет запрос на вход в игру персонажем
type LoginRequest struct {
	CharacterID uint64 `json:"character_id" binding:"required"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError транслирует доменные ошибки в HTTP статусы.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNameTaken),
		errors.Is(err, registry.ErrAlreadyRegistered),
		errors.Is(err, registry.ErrNotLoggedIn):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNotRegistered),
		errors.Is(err, registry.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Внутренняя ошибка сервера"
	}
	c.JSON(status, GenericResponse{Success: false, Message: msg})
}

//================ Обработчики =================//

// handleHandshake выдаёт новую identity с JWT и открывает сессию.
func (rs *RestServer) handleHandshake(c *gin.Context) {
	identity, err := auth.NewIdentity()
	if err != nil {
		c.JSON(http.StatusInternalServerError, HandshakeResponse{
			Success: false,
			Message: "Ошибка генерации identity",
		})
		return
	}

	token, err := auth.GenerateToken(identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, HandshakeResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	if err := rs.game.Connect(c.Request.Context(), identity, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, HandshakeResponse{
		Success:  true,
		Identity: identity,
		Token:    token,
		Message:  "Рукопожатие выполнено",
	})
}

// handleRegister регистрирует аккаунт вызывающего.
func (rs *RestServer) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	identity := c.GetString("identity")
	created, err := rs.game.Register(c.Request.Context(), identity, req.Username, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	message := "Аккаунт уже зарегистрирован, обновлён last_login"
	if created {
		status = http.StatusCreated
		message = "Аккаунт зарегистрирован"
	}
	c.JSON(status, GenericResponse{
		Success: true,
		Message: message,
		Data:    map[string]interface{}{"created": created},
	})
}

// handleAccount возвращает запись аккаунта вызывающего.
func (rs *RestServer) handleAccount(c *gin.Context) {
	identity := c.GetString("identity")
	acc, err := rs.game.Account(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Аккаунт получен",
		Data:    acc,
	})
}

// handleCreateCharacter создаёт персонажа для вызывающего.
func (rs *RestServer) handleCreateCharacter(c *gin.Context) {
	var req CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	identity := c.GetString("identity")
	look := registry.AppearanceFields{
		Skin:   req.Appearance.Skin,
		Hair:   req.Appearance.Hair,
		Eyes:   req.Appearance.Eyes,
		Outfit: req.Appearance.Outfit,
	}
	id, err := rs.game.CreateCharacter(c.Request.Context(), identity, req.Name, req.Class, look, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Персонаж создан",
		Data:    map[string]interface{}{"character_id": id},
	})
}

// handleListCharacters возвращает персонажей вызывающего.
func (rs *RestServer) handleListCharacters(c *gin.Context) {
	identity := c.GetString("identity")
	chars, err := rs.game.CharactersOf(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Персонажи получены",
		Data: map[string]interface{}{
			"characters": chars,
			"total":      len(chars),
		},
	})
}

// handleGetCharacter возвращает персонажа с внешностью по ID.
func (rs *RestServer) handleGetCharacter(c *gin.Context) {
	id, ok := rs.characterID(c)
	if !ok {
		return
	}
	view, err := rs.game.Character(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Персонаж получен",
		Data:    view,
	})
}

// handleGetAppearance возвращает внешность персонажа.
func (rs *RestServer) handleGetAppearance(c *gin.Context) {
	id, ok := rs.characterID(c)
	if !ok {
		return
	}
	view, err := rs.game.Character(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Внешность получена",
		Data:    view.Appearance,
	})
}

// handleGetCharacterByName ищет персонажа по имени (без учёта регистра).
func (rs *RestServer) handleGetCharacterByName(c *gin.Context) {
	ch, err := rs.game.CharacterByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Персонаж получен",
		Data:    ch,
	})
}

// handleGetPosition возвращает последнюю известную позицию персонажа.
func (rs *RestServer) handleGetPosition(c *gin.Context) {
	id, ok := rs.characterID(c)
	if !ok {
		return
	}
	pos, err := rs.game.LastPosition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Позиция получена",
		Data:    pos,
	})
}

// handleUpdatePosition перемещает персонажа вызывающего.
func (rs *RestServer) handleUpdatePosition(c *gin.Context) {
	id, ok := rs.characterID(c)
	if !ok {
		return
	}

	var req UpdatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	identity := c.GetString("identity")
	err := rs.game.UpdatePosition(c.Request.Context(), identity, id, req.X, req.Y, req.Direction, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Позиция обновлена",
	})
}

// handleLogin входит в игру выбранным персонажем.
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	identity := c.GetString("identity")
	if err := rs.game.Login(c.Request.Context(), identity, req.CharacterID, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Вход выполнен",
	})
}

// handleLogout выходит из игры.
func (rs *RestServer) handleLogout(c *gin.Context) {
	identity := c.GetString("identity")
	if err := rs.game.Logout(c.Request.Context(), identity, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Выход выполнен",
	})
}

// handleDisconnect снимает сессию при разрыве соединения.
func (rs *RestServer) handleDisconnect(c *gin.Context) {
	identity := c.GetString("identity")
	if err := rs.game.Disconnect(c.Request.Context(), identity, time.Now().UTC()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Отключение выполнено",
	})
}

// handleSession возвращает активную сессию вызывающего.
func (rs *RestServer) handleSession(c *gin.Context) {
	identity := c.GetString("identity")
	ses, err := rs.game.Session(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сессия получена",
		Data:    ses,
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	online, err := rs.game.OnlineCount(c.Request.Context())
	if err == nil {
		stats["sessions"] = map[string]interface{}{"online": online}
	}

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()
	systemCPU, _ := rs.metrics.GetSystemCPUUsage()

	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"system_cpu":  fmt.Sprintf("%.2f", systemCPU),
		"server_time": time.Now().Unix(),
	}

	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": rs.metrics.GetUptime(),
		"time":   time.Now().Unix(),
	})
}

// characterID извлекает ID персонажа из пути.
func (rs *RestServer) characterID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный ID персонажа",
		})
		return 0, false
	}
	return id, true
}

// Start запускает REST API сервер (блокирующий вызов).
func (rs *RestServer) Start() error {
	return rs.router.Run(rs.port)
}

// Router отдаёт внутренний gin.Engine (используется в тестах).
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}
