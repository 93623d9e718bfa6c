// Package modeltest 提供测试用的小型偏好数据集。
package modeltest

import "github.com/rushteam/cfkit/model"

// Movies 返回经典的电影评分数据集（8 个用户，6 部电影，评分 1.0~5.0）。
// "Maria Gabriela" 是一个没有任何评分的已知用户。
func Movies() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"Marcel Caraciolo": {
			"Lady in the Water": 2.5, "Snakes on a Plane": 3.5, "Just My Luck": 3.0,
			"Superman Returns": 3.5, "You, Me and Dupree": 2.5, "The Night Listener": 3.0,
		},
		"Luciana Nunes": {
			"Lady in the Water": 3.0, "Snakes on a Plane": 3.5, "Just My Luck": 1.5,
			"Superman Returns": 5.0, "The Night Listener": 3.0, "You, Me and Dupree": 3.5,
		},
		"Leopoldo Pires": {
			"Lady in the Water": 2.5, "Snakes on a Plane": 3.0,
			"Superman Returns": 3.5, "The Night Listener": 4.0,
		},
		"Lorena Abreu": {
			"Snakes on a Plane": 3.5, "Just My Luck": 3.0, "The Night Listener": 4.5,
			"Superman Returns": 4.0, "You, Me and Dupree": 2.5,
		},
		"Steve Gates": {
			"Lady in the Water": 3.0, "Snakes on a Plane": 4.0, "Just My Luck": 2.0,
			"Superman Returns": 3.0, "The Night Listener": 3.0, "You, Me and Dupree": 2.0,
		},
		"Sheldom": {
			"Lady in the Water": 3.0, "Snakes on a Plane": 4.0, "The Night Listener": 3.0,
			"Superman Returns": 5.0, "You, Me and Dupree": 3.5,
		},
		"Penny Frewman": {
			"Snakes on a Plane": 4.5, "You, Me and Dupree": 1.0, "Superman Returns": 4.0,
		},
		"Maria Gabriela": {},
	}
}

// NewMovies 返回基于 Movies 的 MemoryDataModel。
func NewMovies(opts ...model.MemoryOption) *model.MemoryDataModel {
	return model.NewMemoryDataModel(Movies(), opts...)
}
