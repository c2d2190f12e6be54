package executor

// Помощники для извлечения значений из непрозрачной конфигурации узла.
// Отсутствующий или неподходящий по типу ключ даёт нулевое значение.

// configString извлекает строковое значение из конфига.
func configString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// configInt извлекает числовое значение из конфига.
// JSON-декодер отдаёт числа как float64, учитываем это.
func configInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// configBool извлекает булево значение из конфига.
func configBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// configStringMap извлекает map[string]string из конфига.
func configStringMap(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string, len(m))
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
