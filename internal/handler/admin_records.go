package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	errSpeakerHasArticle     = errors.New("speaker owns an article")
	errListenerHasAttendance = errors.New("listener has attendances")
)

// pageParams reads page and page_size with the admin list defaults.
func pageParams(c *gin.Context) (page, size, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size, (page - 1) * size
}

// trimmed returns the trimmed value and false when it is blank.
func trimmed(s *string) (string, bool) {
	v := strings.TrimSpace(*s)
	return v, v != ""
}

// ---------- students ----------

func (h *AdminHandler) findStudent(c *gin.Context) (*models.Student, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var student models.Student
	if err := h.DB.WithContext(c.Request.Context()).First(&student, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Estudiante no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiante")
		}
		return nil, false
	}
	return &student, true
}

// GetStudent GET /api/admin/students/:id
func (h *AdminHandler) GetStudent(c *gin.Context) {
	student, ok := h.findStudent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	resp := studentJSON(student)

	var article models.Article
	err := h.DB.WithContext(ctx).Where("student_id = ?", student.ID).First(&article).Error
	switch {
	case err == nil:
		resp["article"] = articleJSON(&article)
	case errors.Is(err, gorm.ErrRecordNotFound):
		resp["article"] = nil
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículo")
		return
	}

	var attended int64
	if err := h.DB.WithContext(ctx).Model(&models.Attendance{}).
		Where("student_id = ?", student.ID).Count(&attended).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asistencias")
		return
	}
	resp["total_attendances"] = attended
	util.Success(c, util.Response{"student": resp})
}

type updateStudentReq struct {
	DNI         *string `json:"dni"`
	StudentCode *string `json:"student_code"`
	FirstName   *string `json:"first_name" binding:"omitempty,max=128"`
	LastName    *string `json:"last_name" binding:"omitempty,max=128"`
	Type        *string `json:"type" binding:"omitempty,oneof=ponente oyente"`
	Campus      *string `json:"campus" binding:"omitempty,max=100"`
	School      *string `json:"school" binding:"omitempty,max=150"`
	Cycle       *string `json:"cycle" binding:"omitempty,max=20"`
}

// UpdateStudent PUT /api/admin/students/:id
// A speaker who owns an article cannot become a listener, and a listener
// with attendances cannot become a speaker.
func (h *AdminHandler) UpdateStudent(c *gin.Context) {
	student, ok := h.findStudent(c)
	if !ok {
		return
	}
	var req updateStudentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}

	updates := map[string]interface{}{}
	if req.DNI != nil {
		dni := strings.TrimSpace(*req.DNI)
		if err := util.ValidateDNI(dni); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
			return
		}
		updates["dni"] = dni
	}
	newCode := ""
	if req.StudentCode != nil {
		newCode = strings.TrimSpace(*req.StudentCode)
		if err := util.ValidateStudentCode(newCode); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Código de estudiante inválido")
			return
		}
		updates["student_code"] = newCode
	}
	for col, v := range map[string]*string{"first_name": req.FirstName, "last_name": req.LastName} {
		if v == nil {
			continue
		}
		name, ok := trimmed(v)
		if !ok {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Nombres y apellidos son obligatorios")
			return
		}
		updates[col] = name
	}
	for col, v := range map[string]*string{"campus": req.Campus, "school": req.School, "cycle": req.Cycle} {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	if req.Type != nil && *req.Type != student.Type {
		updates["type"] = *req.Type
	}
	if len(updates) == 0 {
		util.Success(c, util.Response{"message": "Sin cambios", "student": studentJSON(student)})
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if t, changed := updates["type"]; changed {
			var n int64
			if t == models.StudentListener {
				if err := tx.Model(&models.Article{}).Where("student_id = ?", student.ID).Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					return errSpeakerHasArticle
				}
			} else {
				if err := tx.Model(&models.Attendance{}).Where("student_id = ?", student.ID).Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					return errListenerHasAttendance
				}
			}
		}
		if err := tx.Model(&models.Student{}).Where("id = ?", student.ID).Updates(updates).Error; err != nil {
			return err
		}
		if newCode != "" {
			if err := tx.Model(&models.User{}).Where("id = ?", student.UserID).Update("username", newCode).Error; err != nil {
				return err
			}
		}
		return tx.First(student, student.ID).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errSpeakerHasArticle):
			util.Error(c, http.StatusConflict, util.CodeConflict, "El ponente tiene un artículo registrado")
		case errors.Is(err, errListenerHasAttendance):
			util.Error(c, http.StatusConflict, util.CodeConflict, "El oyente ya tiene asistencias registradas")
		case errors.Is(err, gorm.ErrDuplicatedKey):
			util.Error(c, http.StatusConflict, util.CodeConflict, "El DNI o código de estudiante ya está registrado")
		default:
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al actualizar estudiante")
		}
		return
	}

	util.Success(c, util.Response{
		"message": "Estudiante actualizado exitosamente",
		"student": studentJSON(student),
	})
}

// DeleteStudent DELETE /api/admin/students/:id
// The student's article, its tokens, attendances and evaluations go with it.
func (h *AdminHandler) DeleteStudent(c *gin.Context) {
	student, ok := h.findStudent(c)
	if !ok {
		return
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Article{}).Select("id").Where("student_id = ?", student.ID)
		if err := tx.Where("article_id IN (?)", owned).Delete(&models.ArticleJuror{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Student{}, student.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, student.UserID).Error
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al eliminar estudiante")
		return
	}
	util.Success(c, util.Response{"message": "Estudiante eliminado exitosamente"})
}

// ---------- jurors ----------

// ListJurors GET /api/admin/jurors?search=&page=&page_size=
func (h *AdminHandler) ListJurors(c *gin.Context) {
	page, size, offset := pageParams(c)

	q := h.DB.WithContext(c.Request.Context()).Model(&models.Juror{})
	if s := strings.TrimSpace(c.Query("search")); s != "" {
		like := "%" + s + "%"
		q = q.Where("first_name LIKE ? OR last_name LIKE ? OR dni LIKE ? OR username LIKE ?", like, like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}
	var jurors []models.Juror
	if err := q.Order("last_name ASC, first_name ASC, id ASC").
		Offset(offset).Limit(size).Find(&jurors).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}

	items := make([]gin.H, 0, len(jurors))
	for i := range jurors {
		items = append(items, jurorJSON(&jurors[i]))
	}
	util.Success(c, util.Response{"items": items, "total": total, "page": page, "size": size})
}

func (h *AdminHandler) findJuror(c *gin.Context) (*models.Juror, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var juror models.Juror
	if err := h.DB.WithContext(c.Request.Context()).First(&juror, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Jurado no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurado")
		}
		return nil, false
	}
	return &juror, true
}

// GetJuror GET /api/admin/jurors/:id
func (h *AdminHandler) GetJuror(c *gin.Context) {
	juror, ok := h.findJuror(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var assigned, evaluated int64
	if err := h.DB.WithContext(ctx).Model(&models.ArticleJuror{}).
		Where("juror_id = ?", juror.ID).Count(&assigned).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asignaciones")
		return
	}
	if err := h.DB.WithContext(ctx).Model(&models.Evaluation{}).
		Where("juror_id = ?", juror.ID).Count(&evaluated).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluaciones")
		return
	}

	resp := jurorJSON(juror)
	resp["dni"] = juror.DNI
	resp["total_articles"] = assigned
	resp["total_evaluations"] = evaluated
	util.Success(c, util.Response{"juror": resp})
}

type updateJurorReq struct {
	DNI       *string `json:"dni"`
	Username  *string `json:"username" binding:"omitempty,min=3,max=50"`
	FirstName *string `json:"first_name" binding:"omitempty,max=128"`
	LastName  *string `json:"last_name" binding:"omitempty,max=128"`
	Specialty *string `json:"specialty" binding:"omitempty,max=128"`
}

// UpdateJuror PUT /api/admin/jurors/:id
func (h *AdminHandler) UpdateJuror(c *gin.Context) {
	juror, ok := h.findJuror(c)
	if !ok {
		return
	}
	var req updateJurorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}

	updates := map[string]interface{}{}
	if req.DNI != nil {
		dni := strings.TrimSpace(*req.DNI)
		if err := util.ValidateDNI(dni); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
			return
		}
		updates["dni"] = dni
	}
	newUsername := ""
	for col, v := range map[string]*string{"username": req.Username, "first_name": req.FirstName, "last_name": req.LastName} {
		if v == nil {
			continue
		}
		val, ok := trimmed(v)
		if !ok {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Usuario, nombres y apellidos son obligatorios")
			return
		}
		updates[col] = val
		if col == "username" {
			newUsername = val
		}
	}
	if req.Specialty != nil {
		updates["specialty"] = strings.TrimSpace(*req.Specialty)
	}
	if len(updates) == 0 {
		util.Success(c, util.Response{"message": "Sin cambios", "juror": jurorJSON(juror)})
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Juror{}).Where("id = ?", juror.ID).Updates(updates).Error; err != nil {
			return err
		}
		if newUsername != "" {
			if err := tx.Model(&models.User{}).Where("id = ?", juror.UserID).Update("username", newUsername).Error; err != nil {
				return err
			}
		}
		return tx.First(juror, juror.ID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "El DNI o usuario ya está registrado")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al actualizar jurado")
		return
	}
	util.Success(c, util.Response{
		"message": "Jurado actualizado exitosamente",
		"juror":   jurorJSON(juror),
	})
}

// DeleteJuror DELETE /api/admin/jurors/:id
// Assignments and evaluations of the juror are removed with it.
func (h *AdminHandler) DeleteJuror(c *gin.Context) {
	juror, ok := h.findJuror(c)
	if !ok {
		return
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("juror_id = ?", juror.ID).Delete(&models.ArticleJuror{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Juror{}, juror.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, juror.UserID).Error
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al eliminar jurado")
		return
	}
	util.Success(c, util.Response{"message": "Jurado eliminado exitosamente"})
}

// ---------- articles ----------

// ListArticles GET /api/admin/articles?type=&shift=&page=&page_size=
func (h *AdminHandler) ListArticles(c *gin.Context) {
	page, size, offset := pageParams(c)

	q := h.DB.WithContext(c.Request.Context()).Model(&models.Article{})
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	if s := c.Query("shift"); s != "" {
		q = q.Where("shift = ?", s)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículos")
		return
	}
	var articles []models.Article
	if err := q.Preload("Student").Order("presentation_date ASC, id ASC").
		Offset(offset).Limit(size).Find(&articles).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículos")
		return
	}

	items := make([]gin.H, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		item := articleJSON(a)
		item["student_id"] = a.StudentID
		item["ponente"] = gin.H{"full_name": a.Student.FullName()}
		items = append(items, item)
	}
	util.Success(c, util.Response{"items": items, "total": total, "page": page, "size": size})
}

func (h *AdminHandler) findArticle(c *gin.Context) (*models.Article, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var article models.Article
	if err := h.DB.WithContext(c.Request.Context()).Preload("Student").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Artículo no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículo")
		}
		return nil, false
	}
	return &article, true
}

// GetArticle GET /api/admin/articles/:id
func (h *AdminHandler) GetArticle(c *gin.Context) {
	article, ok := h.findArticle(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var jurors []models.Juror
	if err := h.DB.WithContext(ctx).
		Joins("JOIN article_jurors ON article_jurors.juror_id = jurors.id").
		Where("article_jurors.article_id = ?", article.ID).
		Order("jurors.last_name ASC, jurors.id ASC").Find(&jurors).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}
	var evals []models.Evaluation
	if err := h.DB.WithContext(ctx).Where("article_id = ?", article.ID).
		Order("id ASC").Find(&evals).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluaciones")
		return
	}
	var attended int64
	if err := h.DB.WithContext(ctx).Model(&models.Attendance{}).
		Where("article_id = ?", article.ID).Count(&attended).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asistencias")
		return
	}

	jurorItems := make([]gin.H, 0, len(jurors))
	for i := range jurors {
		jurorItems = append(jurorItems, jurorJSON(&jurors[i]))
	}
	evalItems := make([]gin.H, 0, len(evals))
	for i := range evals {
		evalItems = append(evalItems, evaluationJSON(&evals[i]))
	}

	resp := articleJSON(article)
	resp["student_id"] = article.StudentID
	resp["ponente"] = studentJSON(&article.Student)
	resp["jurors"] = jurorItems
	resp["evaluations"] = evalItems
	resp["total_attendances"] = attended
	util.Success(c, util.Response{"article": resp})
}

type updateArticleReq struct {
	StudentID        *uint   `json:"student_id" binding:"omitempty,gt=0"`
	Title            *string `json:"title" binding:"omitempty,max=255"`
	Description      *string `json:"description" binding:"omitempty,max=5000"`
	Type             *string `json:"type" binding:"omitempty,oneof=revision_sistematica empirico teorico estudio_caso"`
	PresentationDate *string `json:"presentation_date"`
	PresentationTime *string `json:"presentation_time"`
	Shift            *string `json:"shift" binding:"omitempty,oneof=mañana tarde"`
}

// UpdateArticle PUT /api/admin/articles/:id
// A new owner must be a speaker without another article.
func (h *AdminHandler) UpdateArticle(c *gin.Context) {
	article, ok := h.findArticle(c)
	if !ok {
		return
	}
	var req updateArticleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	ctx := c.Request.Context()

	updates := map[string]interface{}{}
	if req.Title != nil {
		title, ok := trimmed(req.Title)
		if !ok {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El título es obligatorio")
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.Shift != nil {
		updates["shift"] = *req.Shift
	}
	if req.PresentationDate != nil {
		if *req.PresentationDate == "" {
			updates["presentation_date"] = nil
		} else {
			if err := util.ValidateDate(*req.PresentationDate); err != nil {
				util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Fecha inválida, use AAAA-MM-DD")
				return
			}
			d, _ := time.Parse("2006-01-02", *req.PresentationDate)
			updates["presentation_date"] = &d
		}
	}
	if req.PresentationTime != nil {
		if *req.PresentationTime != "" {
			if err := util.ValidateClock(*req.PresentationTime); err != nil {
				util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Hora inválida, use HH:MM")
				return
			}
		}
		updates["presentation_time"] = *req.PresentationTime
	}
	if req.StudentID != nil && *req.StudentID != article.StudentID {
		var owner models.Student
		if err := h.DB.WithContext(ctx).First(&owner, *req.StudentID).Error; err != nil {
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
		updates["student_id"] = owner.ID
	}
	if len(updates) == 0 {
		util.Success(c, util.Response{"message": "Sin cambios", "article": articleJSON(article)})
		return
	}

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Article{}).Where("id = ?", article.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Preload("Student").First(article, article.ID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "El ponente ya tiene un artículo registrado")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al actualizar artículo")
		return
	}

	resp := articleJSON(article)
	resp["student_id"] = article.StudentID
	util.Success(c, util.Response{
		"message": "Artículo actualizado exitosamente",
		"article": resp,
	})
}

// DeleteArticle DELETE /api/admin/articles/:id
// Issued QR tokens, attendances and evaluations are removed with it.
func (h *AdminHandler) DeleteArticle(c *gin.Context) {
	article, ok := h.findArticle(c)
	if !ok {
		return
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", article.ID).Delete(&models.ArticleJuror{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Article{}, article.ID).Error
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al eliminar artículo")
		return
	}
	util.Success(c, util.Response{"message": "Artículo eliminado exitosamente"})
}
