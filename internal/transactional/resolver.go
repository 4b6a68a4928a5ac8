package transactional

// Resolver はメソッド定義のファクトリでエラーを置き換える
type Resolver struct {
	registry *Registry
}

// NewResolver は Resolver を作成する
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve はファクトリが非 nil を返した場合にそのエラーを返し、それ以外は元のエラーを返す
// ロールバックの可否には関与しない
func (r *Resolver) Resolve(key MethodKey, err error) error {
	if err == nil {
		return nil
	}
	d, ok := r.registry.Describe(key)
	if !ok || d.RollbackError == nil {
		return err
	}
	if resolved := d.RollbackError(err); resolved != nil {
		return resolved
	}
	return err
}
