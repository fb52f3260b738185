// Package progress содержит доменную модель прогресса пользователя PMCraft Hub.
//
// Это ядро бизнес-логики системы "PMCraft Hub" - движка прогресса и достижений
// обучающей платформы для продакт-менеджеров. Пакет определяет:
//
//   - Сущности (Entities): UserProgress, ScenarioRecord, LessonRecord
//   - Value Objects: XP, Level
//   - Политики (Policies): начисление XP, вычисление уровня, серии активных дней
//   - Интерфейсы репозиториев: Repository, StatsCache
//
// # Архитектурные принципы
//
// Пакет следует принципам Clean Architecture и DDD:
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - определяет интерфейсы, которые реализуются в infrastructure
//  3. Rich Domain Model - бизнес-логика инкапсулирована в сущностях
//
// # Ключевые инварианты
//
// Модель поддерживает жёсткие инварианты после каждой мутации:
//
//   - Level всегда вычисляется из XP по формуле floor(xp/100)+1 и никогда
//     не хранится независимо
//   - XP, TotalTimeSpent, LongestStreak и флаги completed монотонно не убывают
//   - LongestStreak >= CurrentStreak
//   - UnlockedAchievements - append-only множество без дубликатов
//
// # Политики
//
// Начисление XP и серии дней реализованы как чистые детерминированные функции
// без побочных эффектов (xp.go, streak.go). Вся мутация состояния проходит
// через методы агрегата UserProgress:
//
//	p, err := NewUserProgress(userID)
//	change := p.TouchActivity(now)
//	outcome, err := p.RecordScenarioAttempt("stakeholder-conflict", 85, 15, now)
//	if outcome.JustCompleted {
//	    // +25 XP бонус уже начислен, уровень пересчитан
//	}
//
// # Конкурентность
//
// Агрегат не потокобезопасен сам по себе. Одновременные события одного
// пользователя сериализуются оптимистичной блокировкой: поле Version
// сравнивается при записи (compare-and-swap в репозитории), при конфликте
// оркестратор перечитывает запись и повторяет цикл ограниченное число раз.
package progress
