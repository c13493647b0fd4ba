package internal

// UniformDelay 讓測試直接檢查 go 延遲的分佈
var UniformDelay = uniformDelay
