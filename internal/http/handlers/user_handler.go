package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"user-admin-server/internal/services"
	"user-admin-server/internal/utils"
)

const avatarField = "avatar"

type UserHandler struct {
	users *services.UserService
}

type CreateUserRequest struct {
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"firstName" form:"firstName"`
	LastName  string `json:"lastName" form:"lastName"`
}

type UpdateUserRequest struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.RespondValidationError(c, utils.BindingDetails(err))
		return
	}

	avatar, err := openAvatar(c)
	if err != nil {
		utils.RespondValidationError(c, gin.H{avatarField: err.Error()})
		return
	}
	if avatar != nil {
		defer avatar.Close()
	}

	res, err := h.users.CreateUser(c.Request.Context(), services.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, readerOrNil(avatar))
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondCreated(c, AuthResponse{UserResponse: userToResponse(*res.User), Token: res.Token})
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	data := make([]UserResponse, 0, len(users))
	for _, u := range users {
		data = append(data, userToResponse(u))
	}
	utils.RespondOK(c, data)
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	req, err := bindUpdate(c)
	if err != nil {
		utils.RespondValidationError(c, utils.BindingDetails(err))
		return
	}

	avatar, err := openAvatar(c)
	if err != nil {
		utils.RespondValidationError(c, gin.H{avatarField: err.Error()})
		return
	}
	if avatar != nil {
		defer avatar.Close()
	}

	user, err := h.users.UpdateUser(c.Request.Context(), id, services.UpdateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, readerOrNil(avatar))
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondOK(c, userToResponse(*user))
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), id); err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondOK(c, gin.H{"message": "User deleted successfully"})
}

func (h *UserHandler) Import(c *gin.Context) {
	res, err := h.users.ImportUsers(c.Request.Context())
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondOK(c, gin.H{
		"message": "Users imported successfully",
		"created": res.Created,
		"skipped": res.Skipped,
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.RespondValidationError(c, gin.H{"id": "must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}

// bindUpdate reads only the fields present in the request so absent ones
// stay nil.
func bindUpdate(c *gin.Context) (UpdateUserRequest, error) {
	var req UpdateUserRequest
	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm, gin.MIMEPOSTForm:
		if _, err := c.MultipartForm(); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req.Email = postFormPtr(c, "email")
		req.Password = postFormPtr(c, "password")
		req.FirstName = postFormPtr(c, "firstName")
		req.LastName = postFormPtr(c, "lastName")
		return req, nil
	default:
		if c.Request.ContentLength == 0 {
			return req, nil
		}
		err := c.ShouldBindJSON(&req)
		return req, err
	}
}

func postFormPtr(c *gin.Context, key string) *string {
	if v, ok := c.GetPostForm(key); ok {
		return &v
	}
	return nil
}

func openAvatar(c *gin.Context) (multipart.File, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}
	fh, err := c.FormFile(avatarField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	return fh.Open()
}

// readerOrNil keeps a nil multipart.File from becoming a non-nil
// io.Reader.
func readerOrNil(f multipart.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}
