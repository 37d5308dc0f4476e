package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEditorGet(t *testing.T) {
	editor := DefaultTransactionContextEditor{}
	tc := NewTransactionContext(NewXid(), Trying)

	assert.Equal(t, tc, editor.Get([]interface{}{"order-1001", tc, 3}))
	assert.Nil(t, editor.Get([]interface{}{"order-1001", 3}))
	assert.Nil(t, editor.Get(nil))
}

func TestDefaultEditorSetByParameterType(t *testing.T) {
	editor := DefaultTransactionContextEditor{}
	tc := NewTransactionContext(NewXid(), Confirming)

	args := []interface{}{"order-1001", nil}
	editor.Set(tc, []string{"string", ContextParameterType}, args)
	assert.Equal(t, tc, args[1])
	assert.Equal(t, "order-1001", args[0])
}

func TestDefaultEditorSetFallsBackToValueScan(t *testing.T) {
	editor := DefaultTransactionContextEditor{}
	stale := NewTransactionContext(NewXid(), Trying)
	fresh := NewTransactionContext(stale.Xid, Cancelling)

	// 参数类型未声明时按现有参数值定位
	args := []interface{}{stale, "order-1001"}
	editor.Set(fresh, nil, args)
	assert.Equal(t, fresh, args[0])
}

func TestNilEditor(t *testing.T) {
	editor := NilTransactionContextEditor{}
	tc := NewTransactionContext(NewXid(), Trying)

	args := []interface{}{tc, "order-1001"}
	assert.Nil(t, editor.Get(args))
	editor.Set(NewTransactionContext(tc.Xid, Confirming), nil, args)
	assert.Equal(t, tc, args[0])
}

func TestEditorByName(t *testing.T) {
	editor, err := EditorByName(DefaultEditorName)
	require.NoError(t, err)
	assert.IsType(t, DefaultTransactionContextEditor{}, editor)

	editor, err = EditorByName("")
	require.NoError(t, err)
	assert.IsType(t, DefaultTransactionContextEditor{}, editor)

	editor, err = EditorByName(NilEditorName)
	require.NoError(t, err)
	assert.IsType(t, NilTransactionContextEditor{}, editor)

	_, err = EditorByName("reflective")
	assert.Error(t, err)
}
