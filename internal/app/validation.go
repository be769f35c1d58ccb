package app

import (
	"engagehub/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("blocktype", func(fl validator.FieldLevel) bool {
			return model.BlockType(fl.Field().String()).IsValid()
		})
	}
}
