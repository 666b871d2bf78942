package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminHandler registers students, jurors and articles.
type AdminHandler struct {
	DB *gorm.DB
}

func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{DB: db}
}

// ---------- students ----------

type createStudentReq struct {
	DNI         string `json:"dni" binding:"required"`
	StudentCode string `json:"student_code" binding:"required"`
	FirstName   string `json:"first_name" binding:"required,max=128"`
	LastName    string `json:"last_name" binding:"required,max=128"`
	Type        string `json:"type" binding:"required,oneof=ponente oyente"`
	Campus      string `json:"campus" binding:"max=100"`
	School      string `json:"school" binding:"max=150"`
	Cycle       string `json:"cycle" binding:"max=20"`
}

// CreateStudent POST /api/admin/students
func (h *AdminHandler) CreateStudent(c *gin.Context) {
	var req createStudentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	req.DNI = strings.TrimSpace(req.DNI)
	req.StudentCode = strings.TrimSpace(req.StudentCode)
	if err := util.ValidateDNI(req.DNI); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
		return
	}
	if err := util.ValidateStudentCode(req.StudentCode); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Código de estudiante inválido")
		return
	}

	student := models.Student{
		DNI:         req.DNI,
		StudentCode: req.StudentCode,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Type:        req.Type,
		Campus:      strings.TrimSpace(req.Campus),
		School:      strings.TrimSpace(req.School),
		Cycle:       strings.TrimSpace(req.Cycle),
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		user := models.User{Username: req.StudentCode, Role: models.RoleStudent}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		student.UserID = user.ID
		student.User = user
		return tx.Omit("User").Create(&student).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "El DNI o código de estudiante ya está registrado")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al registrar estudiante")
		return
	}

	util.Created(c, util.Response{
		"message": "Estudiante registrado exitosamente",
		"student": studentJSON(&student),
	})
}

// ListStudents GET /api/admin/students?type=&search=&page=&page_size=
func (h *AdminHandler) ListStudents(c *gin.Context) {
	page, size, offset := pageParams(c)

	q := h.DB.WithContext(c.Request.Context()).Model(&models.Student{})
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	if s := strings.TrimSpace(c.Query("search")); s != "" {
		like := "%" + s + "%"
		q = q.Where("first_name LIKE ? OR last_name LIKE ? OR dni LIKE ? OR student_code LIKE ?", like, like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiantes")
		return
	}

	var students []models.Student
	if err := q.Order("last_name ASC, first_name ASC, id ASC").
		Offset(offset).Limit(size).Find(&students).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiantes")
		return
	}

	items := make([]gin.H, 0, len(students))
	for i := range students {
		items = append(items, studentJSON(&students[i]))
	}
	util.Success(c, util.Response{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

// ---------- jurors ----------

type createJurorReq struct {
	DNI       string `json:"dni" binding:"required"`
	Username  string `json:"username" binding:"required,min=3,max=50"`
	FirstName string `json:"first_name" binding:"required,max=128"`
	LastName  string `json:"last_name" binding:"required,max=128"`
	Specialty string `json:"specialty" binding:"max=128"`
}

// CreateJuror POST /api/admin/jurors
func (h *AdminHandler) CreateJuror(c *gin.Context) {
	var req createJurorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	req.DNI = strings.TrimSpace(req.DNI)
	req.Username = strings.TrimSpace(req.Username)
	if err := util.ValidateDNI(req.DNI); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
		return
	}

	juror := models.Juror{
		DNI:       req.DNI,
		Username:  req.Username,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Specialty: strings.TrimSpace(req.Specialty),
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		user := models.User{Username: req.Username, Role: models.RoleJuror}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		juror.UserID = user.ID
		juror.User = user
		return tx.Omit("User").Create(&juror).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "El DNI o usuario ya está registrado")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al registrar jurado")
		return
	}

	util.Created(c, util.Response{
		"message": "Jurado registrado exitosamente",
		"juror":   jurorJSON(&juror),
	})
}

// ---------- articles ----------

type createArticleReq struct {
	StudentID        uint   `json:"student_id" binding:"required"`
	Title            string `json:"title" binding:"required,max=255"`
	Description      string `json:"description" binding:"max=5000"`
	Type             string `json:"type" binding:"required,oneof=revision_sistematica empirico teorico estudio_caso"`
	PresentationDate string `json:"presentation_date"`
	PresentationTime string `json:"presentation_time"`
	Shift            string `json:"shift" binding:"omitempty,oneof=mañana tarde"`
}

// CreateArticle POST /api/admin/articles
func (h *AdminHandler) CreateArticle(c *gin.Context) {
	var req createArticleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}

	article := models.Article{
		StudentID:   req.StudentID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Type:        req.Type,
		Shift:       req.Shift,
	}
	if req.PresentationDate != "" {
		if err := util.ValidateDate(req.PresentationDate); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Fecha inválida, use AAAA-MM-DD")
			return
		}
		d, _ := time.Parse("2006-01-02", req.PresentationDate)
		article.PresentationDate = &d
	}
	if req.PresentationTime != "" {
		if err := util.ValidateClock(req.PresentationTime); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Hora inválida, use HH:MM")
			return
		}
		article.PresentationTime = req.PresentationTime
	}

	ctx := c.Request.Context()
	var owner models.Student
	if err := h.DB.WithContext(ctx).First(&owner, req.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Estudiante no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiante")
		}
		return
	}
	if !owner.IsSpeaker() {
		util.Error(c, http.StatusUnprocessableEntity, util.CodeInvalidParam, "El estudiante debe ser ponente")
		return
	}

	if err := h.DB.WithContext(ctx).Create(&article).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "El ponente ya tiene un artículo registrado")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al registrar artículo")
		return
	}

	resp := articleJSON(&article)
	resp["student_id"] = article.StudentID
	util.Created(c, util.Response{
		"message": "Artículo registrado exitosamente",
		"article": resp,
	})
}

type assignJurorsReq struct {
	JurorIDs []uint `json:"juror_ids" binding:"required,min=1,dive,gt=0"`
}

// AssignJurors POST /api/admin/articles/:id/jurors
// Assignments that already exist are ignored.
func (h *AdminHandler) AssignJurors(c *gin.Context) {
	articleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req assignJurorsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}

	ctx := c.Request.Context()
	var article models.Article
	if err := h.DB.WithContext(ctx).First(&article, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Artículo no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículo")
		}
		return
	}

	var found int64
	if err := h.DB.WithContext(ctx).Model(&models.Juror{}).
		Where("id IN ?", req.JurorIDs).Count(&found).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}
	unique := make(map[uint]struct{}, len(req.JurorIDs))
	rows := make([]models.ArticleJuror, 0, len(req.JurorIDs))
	for _, id := range req.JurorIDs {
		if _, dup := unique[id]; dup {
			continue
		}
		unique[id] = struct{}{}
		rows = append(rows, models.ArticleJuror{ArticleID: article.ID, JurorID: id})
	}
	if int(found) != len(rows) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Jurado no encontrado")
		return
	}

	if err := h.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al asignar jurados")
		return
	}

	var total int64
	if err := h.DB.WithContext(ctx).Model(&models.ArticleJuror{}).
		Where("article_id = ?", article.ID).Count(&total).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}
	util.Success(c, util.Response{
		"message":      "Jurados asignados exitosamente",
		"article_id":   article.ID,
		"total_jurors": total,
	})
}
