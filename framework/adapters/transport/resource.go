package transport

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/merliontechs/sales/framework/core"
	"github.com/merliontechs/sales/framework/repository"
)

// ResourceOption настраивает Resource
type ResourceOption[E any] func(*resourceOptions[E])

type resourceOptions[E any] struct {
	validate func(E) error
}

// WithValidator проверяет тело запроса перед Save; ошибка превращается в 400
func WithValidator[E any](validate func(E) error) ResourceOption[E] {
	return func(o *resourceOptions[E]) {
		o.validate = validate
	}
}

// Resource публикует Repository как REST коллекцию:
//
//	GET    /<name>        список; с ?page=&size= одна страница (нумерация с 0, size по умолчанию 20),
//	                      общее количество записей в заголовке X-Total-Count
//	GET    /<name>/count  количество
//	GET    /<name>/:id    одна запись, 404 если нет
//	POST   /<name>        создание, идентификатор назначает store
//	PUT    /<name>/:id    вставка или замена, идентификатор берется из пути
//	DELETE /<name>/:id    удаление, 204 в том числе для отсутствующей записи
type Resource[E any, ID comparable] struct {
	name     string
	repo     repository.Repository[E, ID]
	identity repository.Identity[E, ID]
	parseID  func(string) (ID, error)
	opts     resourceOptions[E]
}

// DefaultPageSize размер страницы, если size не указан
const DefaultPageSize = 20

// TotalCountHeader заголовок с общим количеством записей в ответе списка
const TotalCountHeader = "X-Total-Count"

// NewResource создает REST ресурс над репозиторием
func NewResource[E any, ID comparable](name string, repo repository.Repository[E, ID], identity repository.Identity[E, ID], parseID func(string) (ID, error), opts ...ResourceOption[E]) *Resource[E, ID] {
	r := &Resource[E, ID]{
		name:     name,
		repo:     repo,
		identity: identity,
		parseID:  parseID,
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// Register регистрирует маршруты ресурса в группе
func (r *Resource[E, ID]) Register(group *gin.RouterGroup) {
	g := group.Group("/" + r.name)
	g.GET("", r.list)
	g.GET("/count", r.count)
	g.GET("/:id", r.get)
	g.POST("", r.create)
	g.PUT("/:id", r.replace)
	g.DELETE("/:id", r.delete)
}

func (r *Resource[E, ID]) list(c *gin.Context) {
	_, hasPage := c.GetQuery("page")
	_, hasSize := c.GetQuery("size")
	if hasPage || hasSize {
		r.listPage(c)
		return
	}

	items, err := repository.Collect(r.repo.FindAll(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []E{}
	}
	c.Header(TotalCountHeader, strconv.Itoa(len(items)))
	c.JSON(http.StatusOK, items)
}

func (r *Resource[E, ID]) listPage(c *gin.Context) {
	number, err := strconv.ParseInt(c.DefaultQuery("page", "0"), 10, 64)
	if err != nil || number < 0 {
		writeError(c, core.InvalidArgument("invalid page %q", c.Query("page")))
		return
	}
	size, err := strconv.ParseInt(c.DefaultQuery("size", strconv.Itoa(DefaultPageSize)), 10, 64)
	if err != nil {
		writeError(c, core.InvalidArgument("invalid size %q", c.Query("size")))
		return
	}

	result, err := r.repo.FindPage(c.Request.Context(), repository.PageOf(number, size))
	if err != nil {
		writeError(c, err)
		return
	}
	items := result.Items
	if items == nil {
		items = []E{}
	}
	c.Header(TotalCountHeader, strconv.FormatInt(result.Total, 10))
	c.JSON(http.StatusOK, items)
}

func (r *Resource[E, ID]) count(c *gin.Context) {
	n, err := r.repo.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (r *Resource[E, ID]) get(c *gin.Context) {
	id, ok := r.pathID(c)
	if !ok {
		return
	}

	found, err := r.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	entity, ok := found.Get()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s %v not found", r.name, id)})
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (r *Resource[E, ID]) create(c *gin.Context) {
	entity, ok := r.bind(c)
	if !ok {
		return
	}
	if !repository.IsZero(r.identity.ID(entity)) {
		writeError(c, core.InvalidArgument("identifier is assigned by the server, use PUT /%s/:id", r.name))
		return
	}

	saved, err := r.repo.Save(c.Request.Context(), entity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("%s/%v", c.FullPath(), r.identity.ID(saved)))
	c.JSON(http.StatusCreated, saved)
}

func (r *Resource[E, ID]) replace(c *gin.Context) {
	id, ok := r.pathID(c)
	if !ok {
		return
	}
	if repository.IsZero(id) {
		writeError(c, core.InvalidArgument("%s id must not be zero, use POST /%s", r.name, r.name))
		return
	}
	entity, ok := r.bind(c)
	if !ok {
		return
	}

	saved, err := r.repo.Save(c.Request.Context(), r.identity.WithID(entity, id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (r *Resource[E, ID]) delete(c *gin.Context) {
	id, ok := r.pathID(c)
	if !ok {
		return
	}
	if err := r.repo.DeleteByID(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Resource[E, ID]) pathID(c *gin.Context) (ID, bool) {
	id, err := r.parseID(c.Param("id"))
	if err != nil {
		writeError(c, core.InvalidArgument("invalid %s id %q", r.name, c.Param("id")))
		return id, false
	}
	return id, true
}

func (r *Resource[E, ID]) bind(c *gin.Context) (E, bool) {
	var entity E
	if err := c.ShouldBindJSON(&entity); err != nil {
		writeError(c, core.Wrap(err, core.ErrInvalidArgument, "invalid request body"))
		return entity, false
	}
	if r.opts.validate != nil {
		if err := r.opts.validate(entity); err != nil {
			writeError(c, core.Wrap(err, core.ErrInvalidArgument, "validation failed"))
			return entity, false
		}
	}
	return entity, true
}

// writeError отображает коды FrameworkError в HTTP статусы
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if core.IsCode(err, core.ErrInvalidArgument) {
		status = http.StatusBadRequest
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
