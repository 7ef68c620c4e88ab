package vision

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// -- Mock Definitions --

type mockVisionModel struct {
	mock.Mock
}

func (m *mockVisionModel) Infer(ctx context.Context, image []byte, prompt string) (string, error) {
	args := m.Called(ctx, image, prompt)
	return args.String(0), args.Error(1)
}

type mockImageUnderstanding struct {
	mock.Mock
}

func (m *mockImageUnderstanding) Describe(ctx context.Context, image []byte, question string) (string, error) {
	args := m.Called(ctx, image, question)
	return args.String(0), args.Error(1)
}

func (m *mockImageUnderstanding) Locate(ctx context.Context, image []byte, description string) (schemas.BoundingBox, error) {
	args := m.Called(ctx, image, description)
	return args.Get(0).(schemas.BoundingBox), args.Error(1)
}

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) Close() error { return nil }
